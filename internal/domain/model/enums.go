package model

// Scope is the coarse permission class a request needs. It decides which
// credentials are eligible and in what order they are tried.
type Scope string

const (
	ScopeBasic   Scope = "basic"
	ScopeUser    Scope = "user"
	ScopeFaction Scope = "faction"
	// ScopeAuto asks the broker to infer the scope from the request URL.
	ScopeAuto Scope = "auto"
)

// OwnerClass identifies who owns a credential.
type OwnerClass string

const (
	OwnerUser    OwnerClass = "user"
	OwnerFaction OwnerClass = "faction"
	OwnerUnowned OwnerClass = "unowned"
)

// SyncScope is the subject a delta-sync cursor is keyed under.
type SyncScope string

const (
	SyncScopePlayer  SyncScope = "player"
	SyncScopeFaction SyncScope = "faction"
	SyncScopeGlobal  SyncScope = "global"
)

// KeySource tells whether a candidate came from the credential store or was
// supplied raw by the caller's session.
type KeySource string

const (
	KeySourceDB      KeySource = "db"
	KeySourceSession KeySource = "session"
)
