package fsx

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomicReplace_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFileAtomicReplace(dir, "state.json", []byte("v1")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := WriteFileAtomicReplace(dir, "state.json", []byte("v2")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "state.json"))
	if err != nil {
		t.Fatalf("读取失败：%v", err)
	}
	if string(b) != "v2" {
		t.Fatalf("期望覆盖为 v2，实际：%q", string(b))
	}

	// 临时文件必须被清理。
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("期望只剩最终文件，实际 %d 个条目", len(entries))
	}
}

func TestWriteFileAtomicNoOverwrite_ExistingIsError(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFileAtomicNoOverwrite(dir, "a_icon.png", []byte("x")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	err := WriteFileAtomicNoOverwrite(dir, "a_icon.png", []byte("y"))
	if !errors.Is(err, os.ErrExist) {
		t.Fatalf("期望 os.ErrExist，实际：%v", err)
	}

	b, _ := os.ReadFile(filepath.Join(dir, "a_icon.png"))
	if string(b) != "x" {
		t.Fatalf("原内容不应被覆盖：%q", string(b))
	}
}

func TestWriteFileAtomicNoOverwrite_DirConflict(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "a_icon.png"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	err := WriteFileAtomicNoOverwrite(dir, "a_icon.png", []byte("x"))
	if !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%v", err)
	}
}

func TestWriteFileAtomicReplace_CreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")

	if err := WriteFileAtomicReplace(dir, "state.json", []byte("{}")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "state.json")); err != nil {
		t.Fatalf("期望文件存在：%v", err)
	}
}
