// Package projectdb provides read-only access to the upstream projects
// database: document fetch by id and a resumable changes feed with a
// durable cursor. The engine never writes to this store.
package projectdb

// ProjectDocument is an upstream project record. Only the fields the core
// interprets are typed; everything else is realm-specific and opaque.
type ProjectDocument struct {
	ID          string                `json:"_id"`
	ProjectID   string                `json:"project_id"`
	ProjectName string                `json:"project_name"`
	Details     map[string]any        `json:"details,omitempty"`
	Samples     map[string]SampleInfo `json:"samples,omitempty"`
	// Submit controls the auto/manual branch of the lifecycle. Absent
	// means true.
	Submit *bool `json:"submit,omitempty"`
}

// SampleInfo is the upstream per-sample record.
type SampleInfo struct {
	CustomerName string         `json:"customer_name,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// detailsKeyManualStatus is the upstream flag used for per-sample abort
// signalling.
const detailsKeyManualStatus = "status_(manual)"

// LibraryConstructionMethod returns details.library_construction_method.
func (d *ProjectDocument) LibraryConstructionMethod() (string, bool) {
	if d.Details == nil {
		return "", false
	}
	v, ok := d.Details["library_construction_method"].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// SubmitJobs reports whether jobs should be submitted automatically.
// Defaults to true when the field is absent.
func (d *ProjectDocument) SubmitJobs() bool {
	if d.Submit == nil {
		return true
	}
	return *d.Submit
}

// ManualStatus returns the upstream manual status flag for a sample, or
// the empty string.
func (s SampleInfo) ManualStatus() string {
	if s.Details == nil {
		return ""
	}
	v, _ := s.Details[detailsKeyManualStatus].(string)
	return v
}

// Aborted reports whether the sample was manually aborted upstream.
func (s SampleInfo) Aborted() bool {
	return s.ManualStatus() == "Aborted"
}
