package script

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Input is one unit of analysis: a named SQL script.
type Input struct {
	BaseName   string
	SQLText    string
	SourcePath string
}

func FromLiteral(name, sql string) Input {
	return Input{BaseName: name, SQLText: sql}
}

func FromFile(path string) (Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Input{}, fmt.Errorf("reading script %s: %w", path, err)
	}
	return Input{
		BaseName:   baseName(path),
		SQLText:    string(data),
		SourcePath: path,
	}, nil
}

func FromDir(dir string) ([]Input, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading script directory %s: %w", dir, err)
	}

	var inputs []Input
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".sql") {
			continue
		}
		in, err := FromFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}

	sort.Slice(inputs, func(i, j int) bool { return inputs[i].BaseName < inputs[j].BaseName })
	return inputs, nil
}

// Collect resolves a mixed list of sources. Each argument is a .sql file, a
// directory of .sql files, or "-" for stdin.
func Collect(args []string) ([]Input, error) {
	var inputs []Input
	for _, arg := range args {
		if arg == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return nil, fmt.Errorf("reading stdin: %w", err)
			}
			inputs = append(inputs, Input{BaseName: "stdin", SQLText: string(data)})
			continue
		}

		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("resolving script source %s: %w", arg, err)
		}
		if info.IsDir() {
			dirInputs, err := FromDir(arg)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, dirInputs...)
			continue
		}

		in, err := FromFile(arg)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}

	if len(inputs) == 0 {
		return nil, fmt.Errorf("no scripts found")
	}
	return inputs, nil
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
