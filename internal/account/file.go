package account

import (
	"context"
	"crypto/ecdsa"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pharosbot/internal/template"

	"gopkg.in/yaml.v3"
)

// FileStore reads accounts from a CSV, JSON or YAML file on every List call.
// Each row has name, address and private_key; any field may use ${env:VAR}.
type FileStore struct {
	Path string
}

// NewFileStore resolves a relative path against baseDir.
func NewFileStore(path, baseDir string) *FileStore {
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	return &FileStore{Path: path}
}

func (s *FileStore) List(ctx context.Context) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(s.Path))
	var rows []map[string]string
	var err error

	switch ext {
	case ".csv":
		rows, err = loadCSV(s.Path)
	case ".json":
		rows, err = loadJSON(s.Path)
	case ".yaml", ".yml":
		rows, err = loadYAML(s.Path)
	default:
		return nil, fmt.Errorf("unsupported account file format %q (use .csv, .json or .yaml)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", s.Path, err)
	}

	accounts := make([]Account, 0, len(rows))
	for i, row := range rows {
		acct, err := rowToAccount(row)
		if err != nil {
			return nil, fmt.Errorf("loading %s: row %d: %w", s.Path, i+1, err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

func rowToAccount(row map[string]string) (Account, error) {
	row, err := template.ExpandEnvMap(row)
	if err != nil {
		return Account{}, err
	}

	name := strings.TrimSpace(row["name"])
	address := strings.TrimSpace(row["address"])
	rawKey := strings.TrimSpace(row["private_key"])
	if rawKey == "" {
		return Account{}, fmt.Errorf("missing private_key")
	}

	keyFn := func() (*ecdsa.PrivateKey, error) { return ParseHexKey(rawKey) }

	if address == "" {
		key, err := keyFn()
		if err != nil {
			return Account{}, err
		}
		return FromPrivateKey(name, key), nil
	}
	return New(name, address, keyFn), nil
}

// loadCSV loads a CSV file. First row is headers, subsequent rows are data.
func loadCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, nil
	}

	headers := records[0]
	rows := make([]map[string]string, 0, len(records)-1)

	for _, record := range records[1:] {
		row := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(record) {
				row[strings.TrimSpace(header)] = record[i]
			} else {
				row[strings.TrimSpace(header)] = ""
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// loadJSON loads a JSON file. Must be an array of objects.
func loadJSON(path string) ([]map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var rows []map[string]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("JSON must be an array of objects: %w", err)
	}

	return rows, nil
}

// loadYAML loads a YAML file. Must be a sequence of mappings.
func loadYAML(path string) ([]map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rows []map[string]string
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("YAML must be a list of mappings: %w", err)
	}

	return rows, nil
}
