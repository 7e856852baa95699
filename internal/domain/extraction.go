package domain

import "time"

// ExtractionRequest asks for one run over a set of mappings of an iModel.
type ExtractionRequest struct {
	IModelID   string
	MappingIDs []string
}

// IModelMapping is one row of a report's mapping membership.
type IModelMapping struct {
	IModelID  string `json:"imodelId"`
	MappingID string `json:"mappingId"`
}

// ExtractionRun is a run persisted by the development API server.
type ExtractionRun struct {
	ID         string          `gorm:"type:text;primaryKey" json:"id"`
	IModelID   string          `gorm:"column:imodel_id;type:text;not null;index" json:"imodel_id"`
	MappingIDs StringList      `gorm:"type:text" json:"mapping_ids"`
	State      ExtractionState `gorm:"type:text;default:Queued" json:"state"`
	Reason     string          `json:"reason,omitempty"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TableName returns the database table name for ExtractionRun.
func (ExtractionRun) TableName() string {
	return "extraction_runs"
}

// ReportMapping links a mapping of an iModel to a report.
type ReportMapping struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	ReportID  string    `gorm:"type:text;not null;uniqueIndex:idx_report_mapping" json:"report_id"`
	IModelID  string    `gorm:"column:imodel_id;type:text;not null;uniqueIndex:idx_report_mapping" json:"imodel_id"`
	MappingID string    `gorm:"type:text;not null;uniqueIndex:idx_report_mapping" json:"mapping_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for ReportMapping.
func (ReportMapping) TableName() string {
	return "report_mappings"
}
