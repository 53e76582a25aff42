package ir

// InstanceStatus is the completion state of a saved instance.
type InstanceStatus string

const (
	StatusIncomplete InstanceStatus = "incomplete"
	StatusComplete   InstanceStatus = "complete"
)

// InstanceRecord is the registry entry for a saved instance (store-layer).
type InstanceRecord struct {
	ID          string         `json:"id"`
	FormID      string         `json:"form_id"`
	FormVersion string         `json:"form_version"`
	FormHash    string         `json:"form_hash"`
	DisplayName string         `json:"display_name"`
	Path        string         `json:"path"`
	Status      InstanceStatus `json:"status"`
	Seq         int64          `json:"seq"` // Logical clock of the last save
}

// AuditKind names a navigation audit event.
type AuditKind string

const (
	AuditFormStart         AuditKind = "form_start"
	AuditFormResume        AuditKind = "form_resume"
	AuditSavepointRestored AuditKind = "savepoint_restored"
	AuditQuestion          AuditKind = "question"
	AuditGroup             AuditKind = "group"
	AuditPromptNewRepeat   AuditKind = "prompt_new_repeat"
	AuditEndScreen         AuditKind = "end_screen"
	AuditJump              AuditKind = "jump"
	AuditAddRepeat         AuditKind = "add_repeat"
	AuditDeleteRepeat      AuditKind = "delete_repeat"
	AuditConstraintError   AuditKind = "constraint_error"
	AuditFormDesignError   AuditKind = "form_design_error"
	AuditFormSave          AuditKind = "form_save"
	AuditFormFinalize      AuditKind = "form_finalize"
	AuditFormExit          AuditKind = "form_exit"
)

// AuditEvent is one navigation audit record.
type AuditEvent struct {
	InstanceID string    `json:"instance_id"`
	Seq        int64     `json:"seq"` // Logical clock
	Kind       AuditKind `json:"kind"`
	Index      FormIndex `json:"index"`
	Detail     string    `json:"detail,omitempty"`
}
