// Package model 定义了与数据库表对应的 Go 结构体以及对外返回的数据结构。
package model

import (
	"fmt"
	"strconv"
	"strings"

	"gorm.io/datatypes"
)

// DiabetesRecord 定义了 diabetes_processed 表的 ORM 模型。
// 表只追加，本系统不强制主键；必需列之外的列保存在 Extra 中。
type DiabetesRecord struct {
	RecordID      *int64            `gorm:"column:record_id" json:"record_id"`
	PatientNumber *int64            `gorm:"column:patient_number" json:"patient_number"`
	Gender        *string           `gorm:"column:gender;type:varchar(16)" json:"gender"`
	Age           *int64            `gorm:"column:age" json:"age"`
	Urea          *float64          `gorm:"column:urea" json:"urea"`
	Creatinine    *float64          `gorm:"column:creatinine" json:"creatinine"`
	HbA1c         *float64          `gorm:"column:hba1c" json:"hba1c"`
	Cholesterol   *float64          `gorm:"column:cholesterol" json:"cholesterol"`
	Triglycerides *float64          `gorm:"column:triglycerides" json:"triglycerides"`
	HDL           *float64          `gorm:"column:hdl" json:"hdl"`
	LDL           *float64          `gorm:"column:ldl" json:"ldl"`
	VLDL          *float64          `gorm:"column:vldl" json:"vldl"`
	BMI           *float64          `gorm:"column:bmi" json:"bmi"`
	ClassLabel    *string           `gorm:"column:class_label;type:varchar(16);index" json:"class_label"`
	Extra         datatypes.JSONMap `gorm:"column:extra" json:"extra,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DiabetesRecord) TableName() string {
	return "diabetes_processed"
}

// textColumns 原样写入，不做类型转换。
var textColumns = []string{"gender", "class_label"}

// NewDiabetesRecord 将一行规范化后的字段转换为带类型的记录。
// 空单元格写入 NULL；数值列无法解析时返回错误，错误信息包含列名和原值。
func NewDiabetesRecord(fields map[string]string) (DiabetesRecord, error) {
	var rec DiabetesRecord
	known := make(map[string]struct{}, len(fields))

	ints := []struct {
		col string
		dst **int64
	}{
		{"record_id", &rec.RecordID},
		{"patient_number", &rec.PatientNumber},
		{"age", &rec.Age},
	}
	for _, c := range ints {
		known[c.col] = struct{}{}
		v, err := parseInt(fields[c.col])
		if err != nil {
			return DiabetesRecord{}, fmt.Errorf("column %q: %w", c.col, err)
		}
		*c.dst = v
	}

	floats := []struct {
		col string
		dst **float64
	}{
		{"urea", &rec.Urea},
		{"creatinine", &rec.Creatinine},
		{"hba1c", &rec.HbA1c},
		{"cholesterol", &rec.Cholesterol},
		{"triglycerides", &rec.Triglycerides},
		{"hdl", &rec.HDL},
		{"ldl", &rec.LDL},
		{"vldl", &rec.VLDL},
		{"bmi", &rec.BMI},
	}
	for _, c := range floats {
		known[c.col] = struct{}{}
		v, err := parseFloat(fields[c.col])
		if err != nil {
			return DiabetesRecord{}, fmt.Errorf("column %q: %w", c.col, err)
		}
		*c.dst = v
	}

	for _, col := range textColumns {
		known[col] = struct{}{}
	}
	rec.Gender = parseText(fields["gender"])
	rec.ClassLabel = parseText(fields["class_label"])

	for k, v := range fields {
		if _, ok := known[k]; ok {
			continue
		}
		if rec.Extra == nil {
			rec.Extra = datatypes.JSONMap{}
		}
		rec.Extra[k] = v
	}
	return rec, nil
}

// parseText 只把空单元格当作 NULL，其余值原样保留。
func parseText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func parseInt(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// 部分导出工具会把整数写成 "50.0"
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int64(f)) {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
		v = int64(f)
	}
	return &v, nil
}

func parseFloat(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return &v, nil
}
