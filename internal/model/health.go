package model

// HealthReport 是 /health 的响应结构，每个依赖独立报告状态。
type HealthReport struct {
	API               string `json:"api"`
	ObjectStoreStatus string `json:"object_store_status"`
	DBStatus          string `json:"db_status"`
}
