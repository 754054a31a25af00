package store

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// writeFileAtomic marshals v and replaces path in one rename so a crash
// mid-write can never leave a half-written record behind.
func writeFileAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return storageErr("marshal", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return storageErr("mkdir", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return storageErr("create temp", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return storageErr("write", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return storageErr("sync", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return storageErr("close", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return storageErr("rename", path, err)
	}
	return nil
}

// readJSONFile loads path into v. A missing file is reported via
// os.ErrNotExist so callers can treat it as an empty record.
func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return storageErr("read", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return storageErr("decode", path, err)
	}
	return nil
}
