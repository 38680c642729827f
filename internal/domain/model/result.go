package model

// ResultKind classifies the outcome of a provider-backed operation so every
// route can degrade the same way.
type ResultKind string

const (
	// ResultSuccess means the operation produced its full result.
	ResultSuccess ResultKind = "success"
	// ResultFallback means the operation failed recoverably; callers answer with text only.
	ResultFallback ResultKind = "fallback"
	// ResultFatal means the feature cannot work at all (e.g. missing credentials).
	ResultFatal ResultKind = "fatal"
)

func (k ResultKind) String() string {
	return string(k)
}

// AvatarStatus is the avatar_status value reported to the front end.
type AvatarStatus string

const (
	AvatarStatusNone    AvatarStatus = ""
	AvatarStatusSuccess AvatarStatus = "success"
	AvatarStatusFailed  AvatarStatus = "failed"
	AvatarStatusPending AvatarStatus = "pending"
)

// AvatarStatusFor maps a result kind to the status shown to the front end.
func AvatarStatusFor(k ResultKind) AvatarStatus {
	if k == ResultSuccess {
		return AvatarStatusSuccess
	}
	return AvatarStatusFailed
}
