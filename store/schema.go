package store

import "fmt"

// DynamoDB schema constants for single-table design
const (
	// Table attributes
	AttrPK         = "PK"
	AttrSK         = "SK"
	AttrGSI1PK     = "GSI1PK"
	AttrGSI1SK     = "GSI1SK"
	AttrEntityType = "entity_type"

	// Entity types
	EntityTypeExecution = "Execution"

	// Index names
	IndexStatusIndex = "GSI1"
)

// Execution keys: PK=EXEC#{executionID}, SK=META
func executionPK(executionID string) string {
	return fmt.Sprintf("EXEC#%s", executionID)
}

func executionSK() string {
	return "META"
}

// Status index keys: GSI1PK=STATUS#{status}, GSI1SK={startTime RFC3339}
func executionGSI1PK(status string) string {
	return fmt.Sprintf("STATUS#%s", status)
}

func executionGSI1SK(startedAt string) string {
	return startedAt
}
