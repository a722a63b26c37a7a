package domain

// ModuleKind identifies which assistant module produced a record.
type ModuleKind string

const (
	ModuleChat          ModuleKind = "chat"
	ModuleTranscription ModuleKind = "transcription"
	ModuleKnowledge     ModuleKind = "knowledge"
	ModuleDocumentation ModuleKind = "documentation"
)

// KnownModules lists every module kind, in dashboard display order.
func KnownModules() []ModuleKind {
	return []ModuleKind{ModuleChat, ModuleTranscription, ModuleKnowledge, ModuleDocumentation}
}
