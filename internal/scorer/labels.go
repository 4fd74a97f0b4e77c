package scorer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pagd-project/pagd-go/internal/errors"
)

// yamnetHeader starts the class map CSV shipped with YAMNet.
const yamnetHeader = "index,mid,display_name"

// LoadLabels reads a label file. Plain files hold one label per line and
// blank lines are skipped. Class map CSVs (index,mid,display_name) yield
// the display_name column.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(fmt.Errorf("%w: %w", ErrModelLoad, err)).
			Component("scorer").
			Category(errors.CategoryLabelLoad).
			FileContext(path, 0).
			Build()
	}

	labels, err := ParseLabels(data, strings.EqualFold(filepath.Ext(path), ".csv"))
	if err != nil {
		return nil, errors.New(fmt.Errorf("%w: %w", ErrModelLoad, err)).
			Component("scorer").
			Category(errors.CategoryLabelLoad).
			FileContext(path, int64(len(data))).
			Build()
	}
	return labels, nil
}

// ParseLabels parses label file contents. CSV parsing is used when csv is
// true or the first line is the class map header.
func ParseLabels(data []byte, csv bool) ([]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if csv || bytes.HasPrefix(data, []byte(yamnetHeader)) {
		return parseClassMap(bytes.NewReader(data))
	}

	var labels []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("label file is empty")
	}
	return labels, nil
}

func parseClassMap(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var labels []string
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && strings.Join(record, ",") == yamnetHeader {
			continue
		}
		if len(record) < 3 {
			return nil, fmt.Errorf("class map line %d has %d fields, want 3", line, len(record))
		}
		labels = append(labels, strings.TrimSpace(record[2]))
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("class map is empty")
	}
	return labels, nil
}
