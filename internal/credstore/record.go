package credstore

import "sort"

// Field names of the persisted record. They match the keys of the tokens.json layout.
const (
	FieldCodeVerifier = "codeVerifier"
	FieldState        = "state"
	FieldAccessToken  = "accessToken"
	FieldRefreshToken = "refreshToken"
)

// DefaultRecordKey identifies the single record holding the pending session and the token pair.
const DefaultRecordKey = "default"

// Record is the merged union of authorization session and token pair fields.
type Record map[string]string

// AuthSession is the pending PKCE authorization attempt.
type AuthSession struct {
	CodeVerifier string
	State        string
}

// TokenPair is the access and rotating refresh token issued by the authorization server.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Record converts the session into a partial record for Merge.
func (session AuthSession) Record() Record {
	return Record{
		FieldCodeVerifier: session.CodeVerifier,
		FieldState:        session.State,
	}
}

// Record converts the pair into a partial record for Merge.
func (pair TokenPair) Record() Record {
	return Record{
		FieldAccessToken:  pair.AccessToken,
		FieldRefreshToken: pair.RefreshToken,
	}
}

// AuthSession extracts the pending session. ok is false unless both verifier and state are present.
func (record Record) AuthSession() (AuthSession, bool) {
	session := AuthSession{
		CodeVerifier: record[FieldCodeVerifier],
		State:        record[FieldState],
	}
	return session, session.CodeVerifier != "" && session.State != ""
}

// TokenPair extracts the token pair. ok is false when no refresh token is stored.
func (record Record) TokenPair() (TokenPair, bool) {
	pair := TokenPair{
		AccessToken:  record[FieldAccessToken],
		RefreshToken: record[FieldRefreshToken],
	}
	return pair, pair.RefreshToken != ""
}

// Clone returns an independent copy; a nil record clones to an empty one.
func (record Record) Clone() Record {
	clone := make(Record, len(record))
	for key, value := range record {
		clone[key] = value
	}
	return clone
}

// MergeRecords overwrites the fields of current that are present in partial and keeps the rest.
func MergeRecords(current Record, partial Record) Record {
	merged := current.Clone()
	for key, value := range partial {
		merged[key] = value
	}
	return merged
}

func (record Record) sortedKeys() []string {
	keys := make([]string, 0, len(record))
	for key := range record {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
