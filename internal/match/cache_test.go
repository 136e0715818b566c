package match

import (
	"path/filepath"
	"testing"
)

func TestCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.gob")
	snapshot := CacheSnapshot{
		Employees: []Employee{
			{ID: "emp-1", Code: "1001", Name: "Yamada Taro", Active: true, FaceRegistered: true},
		},
		Descriptors: []Descriptor{
			{ID: 1, EmployeeID: "emp-1", PoseIndex: 0, Quality: 0.9, Embedding: []float32{1, 0, 0}},
		},
	}

	if err := SaveCache(path, snapshot); err != nil {
		t.Fatalf("failed to save cache: %v", err)
	}

	got, err := LoadCache(path)
	if err != nil {
		t.Fatalf("failed to load cache: %v", err)
	}
	if len(got.Employees) != 1 || got.Employees[0].ID != "emp-1" {
		t.Errorf("unexpected employees: %+v", got.Employees)
	}
	if len(got.Descriptors) != 1 || len(got.Descriptors[0].Embedding) != 3 {
		t.Errorf("unexpected descriptors: %+v", got.Descriptors)
	}
}

func TestLoadCacheMissingFile(t *testing.T) {
	if _, err := LoadCache(filepath.Join(t.TempDir(), "absent.gob")); err == nil {
		t.Fatal("expected error for a missing cache file")
	}
}
