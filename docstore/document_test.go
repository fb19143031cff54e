package docstore

import (
	"testing"
)

func TestDerivedStatus(t *testing.T) {
	t.Run("no samples means pending", func(t *testing.T) {
		doc := NewDocument("P001", "ref1", "Test.Project", "tenx")
		if got := doc.DerivedStatus(); got != ProjectPending {
			t.Errorf("expected %s, got %s", ProjectPending, got)
		}
	})

	t.Run("any active sample means processing", func(t *testing.T) {
		doc := NewDocument("P001", "ref1", "Test.Project", "tenx")
		doc.AddSample(Sample{SampleID: "S1", Status: SampleCompleted})
		doc.AddSample(Sample{SampleID: "S2", Status: SampleProcessing})
		if got := doc.DerivedStatus(); got != ProjectProcessing {
			t.Errorf("expected %s, got %s", ProjectProcessing, got)
		}
	})

	t.Run("all samples finished means completed", func(t *testing.T) {
		doc := NewDocument("P001", "ref1", "Test.Project", "tenx")
		doc.AddSample(Sample{SampleID: "S1", Status: SampleCompleted})
		doc.AddSample(Sample{SampleID: "S2", Status: SampleAborted})
		if got := doc.DerivedStatus(); got != ProjectCompleted {
			t.Errorf("expected %s, got %s", ProjectCompleted, got)
		}
	})

	t.Run("all samples not started means pending", func(t *testing.T) {
		doc := NewDocument("P001", "ref1", "Test.Project", "tenx")
		doc.AddSample(Sample{SampleID: "S1", Status: SamplePending})
		doc.AddSample(Sample{SampleID: "S2", Status: SampleUnsequenced})
		if got := doc.DerivedStatus(); got != ProjectPending {
			t.Errorf("expected %s, got %s", ProjectPending, got)
		}
	})

	t.Run("mix of finished and failed means partially completed", func(t *testing.T) {
		doc := NewDocument("P001", "ref1", "Test.Project", "tenx")
		doc.AddSample(Sample{SampleID: "S1", Status: SampleCompleted})
		doc.AddSample(Sample{SampleID: "S2", Status: SampleProcessingFailed})
		if got := doc.DerivedStatus(); got != ProjectPartiallyCompleted {
			t.Errorf("expected %s, got %s", ProjectPartiallyCompleted, got)
		}
	})
}

func TestSampleMutations(t *testing.T) {
	t.Run("AddSample is idempotent and merges flowcells", func(t *testing.T) {
		doc := NewDocument("P001", "ref1", "Test.Project", "tenx")
		doc.AddSample(Sample{SampleID: "S1", Flowcells: []string{"FC1"}})
		doc.AddSample(Sample{SampleID: "S1", Flowcells: []string{"FC1", "FC2"}})

		if len(doc.Samples) != 1 {
			t.Fatalf("expected 1 sample, got %d", len(doc.Samples))
		}
		s := doc.SampleByID("S1")
		if len(s.Flowcells) != 2 {
			t.Errorf("expected 2 flowcells after merge, got %v", s.Flowcells)
		}
	})

	t.Run("AddSample defaults status to pending", func(t *testing.T) {
		doc := NewDocument("P001", "ref1", "Test.Project", "tenx")
		s := doc.AddSample(Sample{SampleID: "S1"})
		if s.Status != SamplePending {
			t.Errorf("expected %s, got %s", SamplePending, s.Status)
		}
	})

	t.Run("start_time set on first active status only", func(t *testing.T) {
		doc := NewDocument("P001", "ref1", "Test.Project", "tenx")
		doc.AddSample(Sample{SampleID: "S1"})

		if err := doc.SetSampleStatus("S1", SamplePreProcessing); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		s := doc.SampleByID("S1")
		if s.StartTime == nil {
			t.Fatal("expected start_time to be set on entering an active status")
		}
		first := *s.StartTime

		if err := doc.SetSampleStatus("S1", SampleProcessing); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !s.StartTime.Equal(first) {
			t.Error("start_time must not change on later active transitions")
		}
	})

	t.Run("end_time set on terminal status", func(t *testing.T) {
		doc := NewDocument("P001", "ref1", "Test.Project", "tenx")
		doc.AddSample(Sample{SampleID: "S1"})

		if err := doc.SetSampleStatus("S1", SampleProcessing); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		s := doc.SampleByID("S1")
		if s.EndTime != nil {
			t.Error("end_time must stay empty before a terminal status")
		}
		if err := doc.SetSampleStatus("S1", SampleCompleted); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.EndTime == nil {
			t.Error("expected end_time on terminal status")
		}
	})

	t.Run("unknown sample id is rejected", func(t *testing.T) {
		doc := NewDocument("P001", "ref1", "Test.Project", "tenx")
		if err := doc.SetSampleStatus("nope", SampleProcessing); err == nil {
			t.Error("expected error for unknown sample id")
		}
		if err := doc.SetSampleJobID("nope", "123"); err == nil {
			t.Error("expected error for unknown sample id")
		}
	})

	t.Run("job id does not re-derive project status", func(t *testing.T) {
		doc := NewDocument("P001", "ref1", "Test.Project", "tenx")
		doc.AddSample(Sample{SampleID: "S1", Status: SampleCompleted})
		doc.SetProjectStatus(ProjectManuallySubmitted)

		if err := doc.SetSampleJobID("S1", "4711"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if doc.ProjectStatus != ProjectManuallySubmitted {
			t.Errorf("expected %s, got %s", ProjectManuallySubmitted, doc.ProjectStatus)
		}
	})
}

func TestHoldStates(t *testing.T) {
	t.Run("manually_submitted_samples survives sample mutations", func(t *testing.T) {
		doc := NewDocument("P001", "ref1", "Test.Project", "tenx")
		doc.AddSample(Sample{SampleID: "S1"})
		doc.SetProjectStatus(ProjectManuallySubmitted)

		if err := doc.SetSampleStatus("S1", SampleProcessing); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if doc.ProjectStatus != ProjectManuallySubmitted {
			t.Errorf("hold state overwritten: got %s", doc.ProjectStatus)
		}
	})

	t.Run("pending_QC survives sample mutations", func(t *testing.T) {
		doc := NewDocument("P001", "ref1", "Test.Project", "tenx")
		doc.AddSample(Sample{SampleID: "S1", Status: SampleCompleted})
		doc.SetProjectStatus(ProjectPendingQC)

		doc.AddSample(Sample{SampleID: "S2", Status: SampleCompleted})
		if doc.ProjectStatus != ProjectPendingQC {
			t.Errorf("hold state overwritten: got %s", doc.ProjectStatus)
		}
	})
}

func TestEndDate(t *testing.T) {
	doc := NewDocument("P001", "ref1", "Test.Project", "tenx")
	doc.AddSample(Sample{SampleID: "S1", Status: SampleProcessing})
	if doc.EndDate != "" {
		t.Fatal("end_date must be empty while processing")
	}

	if err := doc.SetSampleStatus("S1", SampleCompleted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ProjectStatus != ProjectCompleted {
		t.Fatalf("expected %s, got %s", ProjectCompleted, doc.ProjectStatus)
	}
	if doc.EndDate == "" {
		t.Fatal("expected end_date on completion")
	}
	stamped := doc.EndDate

	// Re-entering completed keeps the original end date.
	doc.SetProjectStatus(ProjectCompleted)
	if doc.EndDate != stamped {
		t.Error("end_date must not change while staying completed")
	}

	// Leaving completed clears it.
	doc.AddSample(Sample{SampleID: "S2", Status: SampleProcessing})
	if doc.EndDate != "" {
		t.Error("end_date must be cleared when leaving completed")
	}
}

func TestNGIReport(t *testing.T) {
	rejected := false
	valid := NGIReport{
		FileName:        "P001_report.html",
		DateCreated:     "2026-01-10",
		Signee:          "A. Signer",
		DateSigned:      "2026-01-11",
		Rejected:        &rejected,
		SamplesIncluded: []string{"S1"},
	}

	t.Run("valid report is appended", func(t *testing.T) {
		doc := NewDocument("P001", "ref1", "Test.Project", "tenx")
		if err := doc.AddNGIReport(valid); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(doc.NGIReports) != 1 {
			t.Errorf("expected 1 report, got %d", len(doc.NGIReports))
		}
	})

	t.Run("each missing field is rejected", func(t *testing.T) {
		cases := map[string]func(r *NGIReport){
			"file_name":        func(r *NGIReport) { r.FileName = "" },
			"date_created":     func(r *NGIReport) { r.DateCreated = "" },
			"signee":           func(r *NGIReport) { r.Signee = "" },
			"date_signed":      func(r *NGIReport) { r.DateSigned = "" },
			"rejected":         func(r *NGIReport) { r.Rejected = nil },
			"samples_included": func(r *NGIReport) { r.SamplesIncluded = nil },
		}
		for field, clear := range cases {
			doc := NewDocument("P001", "ref1", "Test.Project", "tenx")
			entry := valid
			clear(&entry)
			if err := doc.AddNGIReport(entry); err == nil {
				t.Errorf("expected rejection for missing %s", field)
			}
			if len(doc.NGIReports) != 0 {
				t.Errorf("incomplete report appended for missing %s", field)
			}
		}
	})
}

func TestAddDeliveryResult(t *testing.T) {
	doc := NewDocument("P001", "ref1", "Test.Project", "tenx")
	doc.AddDeliveryResult(DeliveryResult{DDSProjectID: "dds_001", DateUploaded: "2026-02-01"})
	doc.AddDeliveryResult(DeliveryResult{DateUploaded: "2026-02-05"})

	if len(doc.DeliveryInfo.DeliveryResults) != 2 {
		t.Fatalf("expected 2 delivery results, got %d", len(doc.DeliveryInfo.DeliveryResults))
	}
	if doc.DeliveryInfo.DDSProjectID != "dds_001" {
		t.Errorf("expected dds project id to stick, got %q", doc.DeliveryInfo.DDSProjectID)
	}
}
