// Package schema 负责解析上传的 CSV、校验必需列并规范化列名。
package schema

import (
	"bytes"
	"diabetes-ingest-go/internal/apperror"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// RequiredColumns 是上传文件必须包含的列（规范化之前，区分大小写）。
var RequiredColumns = []string{
	"ID", "No_Pation", "Gender", "AGE", "Urea", "Cr",
	"HbA1c", "Chol", "TG", "HDL", "LDL", "VLDL", "BMI", "CLASS",
}

// columnRenames 作用于小写后的列名；不在表中的列保留小写名。
var columnRenames = map[string]string{
	"id":        "record_id",
	"no_pation": "patient_number",
	"cr":        "creatinine",
	"chol":      "cholesterol",
	"tg":        "triglycerides",
	"class":     "class_label",
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table 是解析后的表格数据，行顺序只用于遍历。
type Table struct {
	Header []string
	Rows   [][]string
}

// Len 返回数据行数（不含表头）。
func (t *Table) Len() int {
	return len(t.Rows)
}

// NormalizedRecord 是一行规范化后的数据，键为规范化列名。
type NormalizedRecord map[string]string

// NormalizeColumn 先小写再套用重命名表。
func NormalizeColumn(name string) string {
	lower := strings.ToLower(name)
	if renamed, ok := columnRenames[lower]; ok {
		return renamed
	}
	return lower
}

// NormalizedColumns 返回必需列规范化后的名字，顺序与 RequiredColumns 一致。
func NormalizedColumns() []string {
	out := make([]string, len(RequiredColumns))
	for i, c := range RequiredColumns {
		out[i] = NormalizeColumn(c)
	}
	return out
}

// ValidateAndNormalize 解析原始字节，校验必需列，并返回表格与逐行规范化的记录。
// 记录数量总是等于数据行数，不会丢弃任何行或列。
func ValidateAndNormalize(raw []byte) (*Table, []NormalizedRecord, error) {
	table, err := parse(raw)
	if err != nil {
		return nil, nil, err
	}

	if missing := missingColumns(table.Header); len(missing) > 0 {
		return nil, nil, apperror.SchemaMismatch(
			fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")),
			RequiredColumns,
		)
	}

	names := make([]string, len(table.Header))
	seen := make(map[string]string, len(table.Header))
	for i, col := range table.Header {
		name := NormalizeColumn(col)
		if prev, dup := seen[name]; dup {
			return nil, nil, apperror.MalformedInput(
				fmt.Sprintf("columns %q and %q both normalize to %q", prev, col, name), nil)
		}
		seen[name] = col
		names[i] = name
	}

	records := make([]NormalizedRecord, 0, len(table.Rows))
	for _, row := range table.Rows {
		rec := make(NormalizedRecord, len(names))
		for i, name := range names {
			rec[name] = row[i]
		}
		records = append(records, rec)
	}
	return table, records, nil
}

// parse 把字节解析为表头 + 数据行。空文件或只有表头都视为格式错误。
func parse(raw []byte) (*Table, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, apperror.MalformedInput("empty CSV file", nil)
	}

	r := csv.NewReader(bytes.NewReader(raw))
	// 每行字段数必须与表头一致
	r.FieldsPerRecord = 0

	header, err := r.Read()
	if err != nil {
		return nil, apperror.MalformedInput("could not parse CSV header", err)
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperror.MalformedInput("could not parse CSV", err)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, apperror.MalformedInput("CSV file has no data rows", nil)
	}
	return &Table{Header: header, Rows: rows}, nil
}

func missingColumns(header []string) []string {
	present := make(map[string]struct{}, len(header))
	for _, h := range header {
		present[h] = struct{}{}
	}
	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := present[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}
