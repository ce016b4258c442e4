package imgx

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func mustPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("生成测试 PNG 失败：%v", err)
	}
	return buf.Bytes()
}

func TestResizePNG_ExactTargetSize(t *testing.T) {
	in := mustPNG(t, 1024, 1024)

	out, err := ResizePNG(in, 256, 256)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("输出必须是可解码的 PNG：%v", err)
	}
	b := img.Bounds()
	if b.Dx() != 256 || b.Dy() != 256 {
		t.Fatalf("期望 256x256，实际 %dx%d", b.Dx(), b.Dy())
	}
}

func TestResizePNG_GarbageInput(t *testing.T) {
	_, err := ResizePNG([]byte("not an image"), 256, 256)
	if !IsUnsupportedFormat(err) {
		t.Fatalf("期望 UnsupportedFormatError，实际：%v", err)
	}
}

func TestResizePNG_EmptyInput(t *testing.T) {
	_, err := ResizePNG(nil, 256, 256)
	if !IsUnsupportedFormat(err) {
		t.Fatalf("期望 UnsupportedFormatError，实际：%v", err)
	}
}

func TestResizePNG_InvalidTargetSize(t *testing.T) {
	in := mustPNG(t, 8, 8)
	if _, err := ResizePNG(in, 0, 256); err == nil {
		t.Fatalf("期望尺寸校验错误，实际 nil")
	}
	if _, err := ResizePNG(in, 256, -1); err == nil {
		t.Fatalf("期望尺寸校验错误，实际 nil")
	}
}

func TestResizePNG_Deterministic(t *testing.T) {
	in := mustPNG(t, 100, 60)
	a, err := ResizePNG(in, 32, 32)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, err := ResizePNG(in, 32, 32)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("相同输入必须产生相同输出")
	}
}
