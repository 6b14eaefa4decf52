package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// loadStorageClasses reads every storage-class declaration file under
// dir (spec §6: "Each storage class file declares {coding, n, k, f,
// max_chunk_size, default}"). An empty dir yields an empty slice rather
// than an error; the caller decides whether a deployment without any
// storage class is acceptable.
func loadStorageClasses(dir string) ([]StorageClassFile, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var classes []StorageClassFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		classes = append(classes, StorageClassFile{
			Name:         name,
			Coding:       v.GetString("coding"),
			N:            v.GetInt("n"),
			K:            v.GetInt("k"),
			F:            v.GetInt("f"),
			MaxChunkSize: v.GetInt64("max_chunk_size"),
			Default:      v.GetBool("default"),
		})
	}
	return classes, nil
}
