package main

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type run struct {
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func execute(t *testing.T, stdin string, args ...string) (*run, int, error) {
	r := &run{}
	config := &CliConfig{
		Name:        "surreal",
		Description: "test",
		Exit: func(rc int) {
			t.Fatalf("unexpected exit with code %d", rc)
		},
		Stdin:  strings.NewReader(stdin),
		Stdout: &r.stdout,
		Stderr: &r.stderr,
	}

	rc, err := Cli(args, config)

	return r, rc, err
}

func results(t *testing.T, r *run) []response {
	var output []response

	require.NoError(t, json.Unmarshal(r.stdout.Bytes(), &output))

	return output
}

func TestVersion(t *testing.T) {
	r, rc, err := execute(t, "", "version")
	require.NoError(t, err)
	require.Equal(t, 0, rc)
	require.Equal(t, "surreal version "+Version+"\n", r.stdout.String())
}

func TestSQL(t *testing.T) {
	r, rc, err := execute(t, "", "sql", "--ns", "test", "--db", "test",
		"INSERT INTO person (id, name) VALUES ('tobie', 'Tobie'); SELECT name FROM person WHERE id = 'tobie'")
	require.NoError(t, err)
	require.Equal(t, 0, rc)

	output := results(t, r)
	require.Len(t, output, 2)
	require.Equal(t, "OK", output[1].Status)
	require.Equal(t, []interface{}{map[string]interface{}{"name": "Tobie"}}, output[1].Result)
}

func TestSQLFromStdin(t *testing.T) {
	r, rc, err := execute(t, "SELECT * FROM person", "sql", "--ns", "test", "--db", "test")
	require.NoError(t, err)
	require.Equal(t, 0, rc)
	require.Equal(t, []interface{}{}, results(t, r)[0].Result)
}

func TestSQLErrors(t *testing.T) {
	testCases := map[string]struct {
		args []string
		err  string
	}{
		"throw": {
			args: []string{"sql", "--ns", "test", "--db", "test", "THROW 'Record does not exist'"},
			err:  "Record does not exist",
		},
		"no-namespace": {
			args: []string{"sql", "--db", "test", "SELECT * FROM person"},
			err:  "specify a namespace to use",
		},
		"viewer": {
			args: []string{"sql", "--ns", "test", "--db", "test", "--auth", "viewer", "DELETE FROM person"},
			err:  "not allowed to do this",
		},
		"bad-auth": {
			args: []string{"sql", "--ns", "test", "--db", "test", "--auth", "root", "SELECT * FROM person"},
			err:  `invalid auth level "root"`,
		},
		"bad-endpoint": {
			args: []string{"--endpoint", "rocksdb://data", "sql", "--ns", "test", "--db", "test", "SELECT * FROM person"},
			err:  "rocksdb",
		},
		"bad-log-level": {
			args: []string{"--log-level", "loud", "nodes"},
			err:  `invalid log level "loud"`,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			_, rc, err := execute(t, "", testCase.args...)
			require.Error(t, err)
			require.Equal(t, 1, rc)
			require.Contains(t, err.Error(), testCase.err)
		})
	}
}

func TestExportImport(t *testing.T) {
	dir := t.TempDir()
	source := "file://" + filepath.Join(dir, "source.db")
	dest := "file://" + filepath.Join(dir, "dest.db")
	export := filepath.Join(dir, "export.bin")

	_, rc, err := execute(t, "", "-e", source, "sql", "--ns", "test", "--db", "test", "INSERT INTO person (id) VALUES ('a'), ('b')")
	require.NoError(t, err)
	require.Equal(t, 0, rc)

	_, rc, err = execute(t, "", "-e", source, "export", export)
	require.NoError(t, err)
	require.Equal(t, 0, rc)

	raw, err := ioutil.ReadFile(export)
	require.NoError(t, err)

	r, rc, err := execute(t, "", "-e", source, "export")
	require.NoError(t, err)
	require.Equal(t, 0, rc)
	require.Equal(t, raw, r.stdout.Bytes())

	_, rc, err = execute(t, string(raw), "-e", dest, "import")
	require.NoError(t, err)
	require.Equal(t, 0, rc)

	fromFile := "file://" + filepath.Join(dir, "from-file.db")
	_, rc, err = execute(t, "", "-e", fromFile, "import", export)
	require.NoError(t, err)
	require.Equal(t, 0, rc)

	for _, endpoint := range []string{dest, fromFile} {
		r, rc, err := execute(t, "", "-e", endpoint, "sql", "--ns", "test", "--db", "test", "SELECT id FROM person")
		require.NoError(t, err)
		require.Equal(t, 0, rc)
		require.Equal(t, []interface{}{
			map[string]interface{}{"id": "a"},
			map[string]interface{}{"id": "b"},
		}, results(t, r)[0].Result)
	}

	_, rc, err = execute(t, "", "-e", dest, "import", filepath.Join(dir, "missing.bin"))
	require.Error(t, err)
	require.Equal(t, 1, rc)
}

func TestNodes(t *testing.T) {
	path := "file://" + filepath.Join(t.TempDir(), "nodes.db")
	first := "b7afc077-2123-476f-bee0-43d7504f1e0a"
	second := "00000000-0000-0000-0000-000000000002"

	_, _, err := execute(t, "", "-e", path, "--node", first, "nodes")
	require.NoError(t, err)

	r, rc, err := execute(t, "", "-e", path, "--node", second, "nodes")
	require.NoError(t, err)
	require.Equal(t, 0, rc)

	lines := strings.Split(strings.TrimSpace(r.stdout.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], second))
	require.True(t, strings.HasSuffix(lines[0], "(this node)"))
	require.True(t, strings.HasPrefix(lines[1], first))

	r, _, err = execute(t, "", "-e", path, "--node", second, "nodes", "--expire", "1ns")
	require.NoError(t, err)
	require.Contains(t, r.stderr.String(), "expired node "+first)
	require.Len(t, strings.Split(strings.TrimSpace(r.stdout.String()), "\n"), 1)

	_, rc, err = execute(t, "", "--node", "00000000-0000-0000-0000-000000000000", "nodes")
	require.Error(t, err)
	require.Equal(t, 1, rc)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	config := Config{Endpoint: "file://" + filepath.Join(dir, "data.db"), Namespace: "test", Database: "test"}
	raw, err := json.Marshal(config)
	require.NoError(t, err)
	require.NoError(t, ioutil.WriteFile(path, raw, 0644))

	_, rc, err := execute(t, "", "-c", path, "sql", "INSERT INTO person (id) VALUES ('a')")
	require.NoError(t, err)
	require.Equal(t, 0, rc)

	r, rc, err := execute(t, "", "-c", path, "sql", "--db", "other", "SELECT * FROM person")
	require.NoError(t, err)
	require.Equal(t, 0, rc)
	require.Equal(t, []interface{}{}, results(t, r)[0].Result)

	_, _, err = execute(t, "", "-c", filepath.Join(dir, "missing.json"), "nodes")
	require.Error(t, err)
}

func TestMerge(t *testing.T) {
	merged := DefaultConfig().Merge(Config{Namespace: "ns"}).Merge(Config{Endpoint: "mvcc://x"})
	require.Equal(t, Config{Endpoint: "mvcc://x", Namespace: "ns", Auth: "owner", LogLevel: "warn"}, merged)
}
