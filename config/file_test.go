// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"io"
	"io/fs"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

func TestFileReader_Read(t *testing.T) {
	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the file does not exist", func(t *testing.T) {
			r := NewFileReader(afero.NewMemMapFs(), "config.yaml")
			_, err := io.ReadAll(r)
			assert.ErrorIs(t, err, fs.ErrNotExist)
		})
	})

	t.Run("will return the file content", func(t *testing.T) {
		t.Run("if the file exists", func(t *testing.T) {
			fs := afero.NewMemMapFs()
			err := afero.WriteFile(fs, "config.yaml", []byte("port: 8080"), 0o644)
			if !assert.Nil(t, err) {
				return
			}

			r := NewFileReader(fs, "config.yaml")
			b, err := io.ReadAll(r)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, "port: 8080", string(b)) {
				return
			}
			assert.Nil(t, r.Close())
		})
	})
}

func TestFileReader_Close(t *testing.T) {
	t.Run("will not return an error", func(t *testing.T) {
		t.Run("if Close is called before the underlying file has been opened", func(t *testing.T) {
			r := NewFileReader(afero.NewMemMapFs(), "config.yaml")
			err := r.Close()
			if !assert.Nil(t, err) {
				return
			}
		})
	})
}
