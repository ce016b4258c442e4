package imgx

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
)

// UnsupportedFormatError 表示输入字节不是可解码的图片。
// 上层可把它映射为 error_code=image_invalid（item 级失败，不中断 run）。
type UnsupportedFormatError struct {
	Err error
}

func (e *UnsupportedFormatError) Error() string {
	if e == nil || e.Err == nil {
		return "不支持的图片格式"
	}
	return fmt.Sprintf("不支持的图片格式：%v", e.Err)
}

func (e *UnsupportedFormatError) Unwrap() error { return e.Err }

func IsUnsupportedFormat(err error) bool {
	var e *UnsupportedFormatError
	return errors.As(err, &e)
}

// ResizePNG 把输入图片缩放到精确的 w×h 并编码为 PNG。
//
// 约束：
// - 输入允许是 PNG/JPEG/GIF 等 imaging 可解码的格式
// - 输出固定为 PNG（图标产物的统一格式）
// - Lanczos 重采样：在缩小场景下质量/速度均衡
// - 纯函数：相同输入 => 相同输出，无副作用
func ResizePNG(b []byte, w, h int) ([]byte, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("目标尺寸无效：%dx%d", w, h)
	}
	if len(b) == 0 {
		return nil, &UnsupportedFormatError{Err: errors.New("输入为空")}
	}

	src, err := imaging.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, &UnsupportedFormatError{Err: err}
	}

	dst := imaging.Resize(src, w, h, imaging.Lanczos)

	var out bytes.Buffer
	if err := imaging.Encode(&out, dst, imaging.PNG); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
