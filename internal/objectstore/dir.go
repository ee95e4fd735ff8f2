package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DirStore — объекты как файлы в локальной директории (ключ — относительный путь).
type DirStore struct {
	// dataDir — корневая директория хранения
	dataDir string
}

// NewDirStore создаёт DirStore. Создаёт директорию, если её нет.
func NewDirStore(dataDir string) (*DirStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("не удалось определить путь %s: %w", dataDir, err)
	}
	return &DirStore{dataDir: abs}, nil
}

// Open открывает файл для чтения.
// Ключи, выходящие за пределы dataDir, считаются отсутствующими.
func (s *DirStore) Open(_ context.Context, key string) (*Object, error) {
	fullPath, ok := s.resolve(key)
	if !ok {
		return nil, ErrNotFound
	}

	f, err := os.Open(fullPath) //nolint:gosec // G304: путь проверен resolve
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", key, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка получения информации о файле %s: %w", key, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}

	return &Object{Body: f, Size: info.Size()}, nil
}

// Put записывает объект через temp-файл и атомарный rename.
// Используется sharectl для загрузки содержимого в локальное хранилище.
func (s *DirStore) Put(key string, r io.Reader) (int64, error) {
	fullPath, ok := s.resolve(key)
	if !ok {
		return 0, fmt.Errorf("недопустимый ключ объекта: %q", key)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return 0, fmt.Errorf("ошибка создания директории: %w", err)
	}

	tmpPath := fullPath + ".tmp"
	f, err := os.Create(tmpPath) //nolint:gosec // G304: путь проверен resolve
	if err != nil {
		return 0, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка записи данных: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка закрытия файла: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return size, nil
}

// resolve переводит ключ в абсолютный путь внутри dataDir.
func (s *DirStore) resolve(key string) (string, bool) {
	if key == "" || filepath.IsAbs(key) {
		return "", false
	}
	fullPath := filepath.Join(s.dataDir, filepath.FromSlash(key))
	if !strings.HasPrefix(fullPath, s.dataDir+string(filepath.Separator)) {
		return "", false
	}
	return fullPath, true
}
