package localstate

import (
    "os"
    "path/filepath"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestFilePersistsAcrossOpens(t *testing.T) {
    path := filepath.Join(t.TempDir(), "nested", "state.json")
    f, err := OpenFile(path)
    require.NoError(t, err)

    require.NoError(t, f.Set(KeyUserRole, "host"))
    require.NoError(t, SetJSON(f, KeyPendingDeletes, []string{"v1", "v2"}))
    require.NoError(t, f.Delete(KeyAdminMode))

    again, err := OpenFile(path)
    require.NoError(t, err)
    v, ok := again.Get(KeyUserRole)
    assert.True(t, ok)
    assert.Equal(t, "host", v)

    var ids []string
    found, err := GetJSON(again, KeyPendingDeletes, &ids)
    require.NoError(t, err)
    assert.True(t, found)
    assert.Equal(t, []string{"v1", "v2"}, ids)

    require.NoError(t, again.Delete(KeyUserRole, KeyPendingDeletes))
    _, ok = again.Get(KeyUserRole)
    assert.False(t, ok)
}

func TestFileRejectsCorruptState(t *testing.T) {
    path := filepath.Join(t.TempDir(), "state.json")
    require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
    _, err := OpenFile(path)
    assert.Error(t, err)
}

func TestGetJSONReportsBadValue(t *testing.T) {
    m := NewMemory()
    require.NoError(t, m.Set(KeyCurrentUser, "{oops"))
    var v map[string]any
    found, err := GetJSON(m, KeyCurrentUser, &v)
    assert.True(t, found)
    assert.Error(t, err)

    found, err = GetJSON(m, "missing", &v)
    assert.False(t, found)
    assert.NoError(t, err)
}

func TestMemoryKeys(t *testing.T) {
    m := NewMemory()
    require.NoError(t, m.Set("b", "2"))
    require.NoError(t, m.Set("a", "1"))
    assert.Equal(t, []string{"a", "b"}, m.Keys())
}
