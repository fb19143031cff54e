// Package docstore provides the Yggdrasil document model and its
// persistence over a revisioned key-value bucket. The document schema is
// part of the external interface: field names and status vocabularies are
// read by tools outside this process.
package docstore

import (
	"fmt"
	"time"
)

// ProjectStatus enumerates the lifecycle states of a project document.
type ProjectStatus string

// Project status vocabulary.
const (
	ProjectPending            ProjectStatus = "pending"
	ProjectProcessing         ProjectStatus = "processing"
	ProjectPartiallyCompleted ProjectStatus = "partially_completed"
	ProjectCompleted          ProjectStatus = "completed"
	ProjectManuallySubmitted  ProjectStatus = "manually_submitted_samples"
	ProjectPendingQC          ProjectStatus = "pending_QC"
	ProjectFailed             ProjectStatus = "failed"
)

// SampleStatus enumerates the lifecycle states of a sample.
type SampleStatus string

// Sample status vocabulary.
const (
	SamplePending            SampleStatus = "pending"
	SampleUnsequenced        SampleStatus = "unsequenced"
	SampleInitialized        SampleStatus = "initialized"
	SamplePreProcessing      SampleStatus = "pre_processing"
	SamplePreProcessed       SampleStatus = "pre_processed"
	SamplePreProcessFailed   SampleStatus = "pre_processing_failed"
	SampleRequiresManual     SampleStatus = "requires_manual_submission"
	SampleAutoSubmitted      SampleStatus = "auto-submitted"
	SampleManuallySubmitted  SampleStatus = "manually_submitted"
	SampleProcessing         SampleStatus = "processing"
	SampleProcessed          SampleStatus = "processed"
	SampleProcessingFailed   SampleStatus = "processing_failed"
	SamplePostProcessing     SampleStatus = "post_processing"
	SampleCompleted          SampleStatus = "completed"
	SamplePostProcessFailed  SampleStatus = "post_processing_failed"
	SampleAborted            SampleStatus = "aborted"
)

// QCStatus enumerates sample QC outcomes. The empty value means QC has not
// been recorded.
type QCStatus string

// QC vocabulary.
const (
	QCUnset   QCStatus = ""
	QCPending QCStatus = "Pending"
	QCPassed  QCStatus = "Passed"
	QCFailed  QCStatus = "Failed"
	QCAborted QCStatus = "Aborted"
)

// Status sets used by the project-status derivation.
var (
	activeStatuses = map[SampleStatus]bool{
		SampleInitialized:    true,
		SampleProcessing:     true,
		SamplePreProcessing:  true,
		SamplePostProcessing: true,
		SampleRequiresManual: true,
	}
	finishedStatuses = map[SampleStatus]bool{
		SampleCompleted: true,
		SampleAborted:   true,
	}
	notStartedStatuses = map[SampleStatus]bool{
		SamplePending:     true,
		SampleUnsequenced: true,
	}
	terminalStatuses = map[SampleStatus]bool{
		SampleCompleted:         true,
		SampleAborted:           true,
		SamplePreProcessFailed:  true,
		SampleProcessingFailed:  true,
		SamplePostProcessFailed: true,
	}
)

// IsTerminal reports whether a sample status is terminal.
func IsTerminal(s SampleStatus) bool {
	return terminalStatuses[s]
}

// IsActive reports whether a sample status counts as active for the
// project-status derivation.
func IsActive(s SampleStatus) bool {
	return activeStatuses[s]
}

// Sample is a processing unit within a Document. One HPC job submission
// corresponds to one sample.
type Sample struct {
	SampleID  string       `json:"sample_id"`
	Status    SampleStatus `json:"status"`
	JobID     string       `json:"job_id,omitempty"`
	StartTime *time.Time   `json:"start_time,omitempty"`
	EndTime   *time.Time   `json:"end_time,omitempty"`
	// Flowcells records which flowcells this sample has been processed
	// for. Inserts are idempotent.
	Flowcells []string `json:"flowcell_ids_processed_for,omitempty"`
	QC        QCStatus `json:"QC,omitempty"`
	Delivered bool     `json:"delivered,omitempty"`
}

// AddFlowcell records a flowcell id, deduplicating on insert.
func (s *Sample) AddFlowcell(id string) {
	for _, fc := range s.Flowcells {
		if fc == id {
			return
		}
	}
	s.Flowcells = append(s.Flowcells, id)
}

// setStatus applies the timestamp invariants for a status change:
// start_time on first entry to an active status, end_time on entry to a
// terminal status.
func (s *Sample) setStatus(status SampleStatus, now time.Time) {
	s.Status = status
	if activeStatuses[status] && s.StartTime == nil {
		t := now
		s.StartTime = &t
	}
	if terminalStatuses[status] {
		t := now
		s.EndTime = &t
	}
}

// UserContact describes one user role attached to a project.
type UserContact struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// NGIReport describes one generated report. All six fields are required;
// AddNGIReport rejects incomplete entries.
type NGIReport struct {
	FileName        string   `json:"file_name"`
	DateCreated     string   `json:"date_created"`
	Signee          string   `json:"signee"`
	DateSigned      string   `json:"date_signed"`
	Rejected        *bool    `json:"rejected"`
	SamplesIncluded []string `json:"samples_included"`
}

// Validate checks that every required report field is present.
func (r *NGIReport) Validate() error {
	switch {
	case r.FileName == "":
		return fmt.Errorf("ngi report: file_name is required")
	case r.DateCreated == "":
		return fmt.Errorf("ngi report: date_created is required")
	case r.Signee == "":
		return fmt.Errorf("ngi report: signee is required")
	case r.DateSigned == "":
		return fmt.Errorf("ngi report: date_signed is required")
	case r.Rejected == nil:
		return fmt.Errorf("ngi report: rejected is required")
	case r.SamplesIncluded == nil:
		return fmt.Errorf("ngi report: samples_included is required")
	}
	return nil
}

// DeliveryResult describes one delivery batch.
type DeliveryResult struct {
	DDSProjectID    string   `json:"dds_project_id"`
	DateUploaded    string   `json:"date_uploaded"`
	DateReleased    string   `json:"date_released,omitempty"`
	SamplesIncluded []string `json:"samples_included,omitempty"`
	TotalVolume     string   `json:"total_volume,omitempty"`
}

// DeliveryInfo groups delivery state for a project.
type DeliveryInfo struct {
	Sensitive       bool             `json:"sensitive"`
	DeliveryResults []DeliveryResult `json:"delivery_results,omitempty"`
	DDSProjectID    string           `json:"dds_project_id,omitempty"`
	Status          string           `json:"status,omitempty"`
}

// Document is the per-project entity the engine owns. project_id is the
// document identity; projects_reference, method, project_name and
// start_date are immutable after creation.
type Document struct {
	ProjectID         string                 `json:"project_id"`
	ProjectsReference string                 `json:"projects_reference"`
	Method            string                 `json:"method"`
	ProjectName       string                 `json:"project_name"`
	StartDate         string                 `json:"start_date"`
	ProjectStatus     ProjectStatus          `json:"project_status"`
	EndDate           string                 `json:"end_date,omitempty"`
	UserInfo          map[string]UserContact `json:"user_info,omitempty"`
	DeliveryInfo      DeliveryInfo           `json:"delivery_info"`
	NGIReports        []NGIReport            `json:"ngi_report,omitempty"`
	Samples           []*Sample              `json:"samples"`

	// revision is the storage engine's optimistic-concurrency token for
	// the last read of this document. Zero for unsaved documents.
	revision uint64
}

// NewDocument creates a document for the first observation of a project.
func NewDocument(projectID, projectsReference, projectName, method string) *Document {
	return &Document{
		ProjectID:         projectID,
		ProjectsReference: projectsReference,
		ProjectName:       projectName,
		Method:            method,
		StartDate:         time.Now().UTC().Format(time.RFC3339),
		ProjectStatus:     ProjectPending,
		DeliveryInfo:      DeliveryInfo{Sensitive: true},
		Samples:           []*Sample{},
	}
}

// Revision returns the optimistic-concurrency token attached on load.
func (d *Document) Revision() uint64 {
	return d.revision
}

// SampleByID returns the sample with the given id, or nil.
func (d *Document) SampleByID(sampleID string) *Sample {
	for _, s := range d.Samples {
		if s.SampleID == sampleID {
			return s
		}
	}
	return nil
}

// AddSample registers a sample. Adding an existing sample id is a no-op
// apart from merging flowcell ids. The project status is re-derived.
func (d *Document) AddSample(sample Sample) *Sample {
	if sample.Status == "" {
		sample.Status = SamplePending
	}
	if existing := d.SampleByID(sample.SampleID); existing != nil {
		for _, fc := range sample.Flowcells {
			existing.AddFlowcell(fc)
		}
		return existing
	}
	s := sample
	d.Samples = append(d.Samples, &s)
	d.deriveStatus()
	return &s
}

// SetSampleStatus transitions a sample and re-derives the project status.
// Unknown sample ids are rejected. The entity does not otherwise restrict
// transitions; legality is owned by the lifecycle template.
func (d *Document) SetSampleStatus(sampleID string, status SampleStatus) error {
	s := d.SampleByID(sampleID)
	if s == nil {
		return fmt.Errorf("sample %s not found in project %s", sampleID, d.ProjectID)
	}
	s.setStatus(status, time.Now().UTC())
	d.deriveStatus()
	return nil
}

// SetSampleJobID records the scheduler job id for a sample.
func (d *Document) SetSampleJobID(sampleID, jobID string) error {
	s := d.SampleByID(sampleID)
	if s == nil {
		return fmt.Errorf("sample %s not found in project %s", sampleID, d.ProjectID)
	}
	s.JobID = jobID
	return nil
}

// SetProjectStatus sets the project status explicitly, applying the
// end-date invariant. Used for states that are not derivable from the
// samples (manually_submitted_samples, pending_QC, failed).
func (d *Document) SetProjectStatus(status ProjectStatus) {
	d.applyProjectStatus(status)
}

// AddNGIReport appends a report entry after validating that all required
// fields are present. Incomplete entries leave the list unchanged.
func (d *Document) AddNGIReport(entry NGIReport) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	d.NGIReports = append(d.NGIReports, entry)
	return nil
}

// AddDeliveryResult appends a delivery result entry.
func (d *Document) AddDeliveryResult(entry DeliveryResult) {
	d.DeliveryInfo.DeliveryResults = append(d.DeliveryInfo.DeliveryResults, entry)
	if entry.DDSProjectID != "" {
		d.DeliveryInfo.DDSProjectID = entry.DDSProjectID
	}
}

// DerivedStatus computes the project status implied by the current sample
// statuses without mutating the document.
func (d *Document) DerivedStatus() ProjectStatus {
	if len(d.Samples) == 0 {
		return ProjectPending
	}
	var anyActive bool
	allFinished := true
	allNotStarted := true
	for _, s := range d.Samples {
		if activeStatuses[s.Status] {
			anyActive = true
		}
		if !finishedStatuses[s.Status] {
			allFinished = false
		}
		if !notStartedStatuses[s.Status] {
			allNotStarted = false
		}
	}
	switch {
	case anyActive:
		return ProjectProcessing
	case allFinished:
		return ProjectCompleted
	case allNotStarted:
		return ProjectPending
	default:
		return ProjectPartiallyCompleted
	}
}

// deriveStatus re-evaluates the project status after a sample mutation.
// Hold states set explicitly by the lifecycle (manually_submitted_samples,
// pending_QC) are not overwritten; only the lifecycle leaves them.
func (d *Document) deriveStatus() {
	if d.ProjectStatus == ProjectManuallySubmitted || d.ProjectStatus == ProjectPendingQC {
		return
	}
	d.applyProjectStatus(d.DerivedStatus())
}

// applyProjectStatus writes the status and maintains end_date: set once on
// entry to completed, cleared on leaving it.
func (d *Document) applyProjectStatus(status ProjectStatus) {
	if status == ProjectCompleted {
		if d.EndDate == "" {
			d.EndDate = time.Now().UTC().Format(time.RFC3339)
		}
	} else {
		d.EndDate = ""
	}
	d.ProjectStatus = status
}
