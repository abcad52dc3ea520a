package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/geo"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/risk"
	"github.com/MrEthical07/goGuard/session"
)

var (
	berlin = geo.Location{City: "Berlin", Country: "DE", Latitude: 52.52, Longitude: 13.405}
	tokyo  = geo.Location{City: "Tokyo", Country: "JP", Latitude: 35.6762, Longitude: 139.6503}

	errBoom = errors.New("boom")
)

type metricCounts map[int]int

func (m metricCounts) inc(id int) { m[id]++ }

type detectRecorder struct {
	revoked    []string
	suspicious []string
	penalties  map[string]int
	hijacks    int
	travels    int
}

func newDetectDeps(rec *detectRecorder, metrics metricCounts, now time.Time) DetectDeps {
	rec.penalties = map[string]int{}
	return DetectDeps{
		ImpossibleTravelKmh: 800,
		TravelPenalty:       20,
		Now:                 func() time.Time { return now },
		FingerprintMatches:  func(a, b string) bool { return a == b },
		RevokeSession: func(_ context.Context, id string) error {
			rec.revoked = append(rec.revoked, id)
			return nil
		},
		MarkSuspicious: func(_ context.Context, id string) error {
			rec.suspicious = append(rec.suspicious, id)
			return nil
		},
		IncrementRiskScore: func(_ context.Context, uid string, delta int) error {
			rec.penalties[uid] += delta
			return nil
		},
		NotifyHijack: func(context.Context, *session.Snapshot, ClientMeta) { rec.hijacks++ },
		NotifyTravel: func(context.Context, string, risk.Travel) { rec.travels++ },
		MetricInc:    metrics.inc,
		Metrics:      DetectMetrics{Hijack: 1, ImpossibleTravel: 2},
	}
}

func TestRunDetectHijackRevokes(t *testing.T) {
	var rec detectRecorder
	metrics := metricCounts{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := &session.Snapshot{SessionID: "s1", UserID: "u1", Fingerprint: "fp-a"}

	res, err := RunDetect(context.Background(), snap, ClientMeta{Fingerprint: "fp-b"}, newDetectDeps(&rec, metrics, now))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res.Verdict != DetectHijack {
		t.Fatalf("expected hijack, got %v", res.Verdict)
	}
	if len(rec.revoked) != 1 || rec.revoked[0] != "s1" || rec.hijacks != 1 || metrics[1] != 1 {
		t.Fatalf("unexpected side effects %+v metrics=%v", rec, metrics)
	}
}

func TestRunDetectImpossibleTravel(t *testing.T) {
	var rec detectRecorder
	metrics := metricCounts{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := &session.Snapshot{
		SessionID:       "s1",
		UserID:          "u1",
		Fingerprint:     "fp-a",
		LastActiveAt:    now.Add(-time.Hour),
		Location:        berlin,
		IPChanged:       true,
		CurrentLocation: tokyo,
	}

	res, err := RunDetect(context.Background(), snap, ClientMeta{Fingerprint: "fp-a"}, newDetectDeps(&rec, metrics, now))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res.Verdict != DetectTravel || res.Travel == nil {
		t.Fatalf("expected travel verdict, got %+v", res)
	}
	if rec.penalties["u1"] != 20 || len(rec.suspicious) != 1 || rec.travels != 1 || len(rec.revoked) != 0 {
		t.Fatalf("unexpected side effects %+v", rec)
	}
}

func TestRunDetectSkipsUnknownLocations(t *testing.T) {
	var rec detectRecorder
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := &session.Snapshot{
		Fingerprint:     "fp-a",
		LastActiveAt:    now.Add(-time.Minute),
		Location:        geo.Unknown,
		IPChanged:       true,
		CurrentLocation: tokyo,
	}

	res, err := RunDetect(context.Background(), snap, ClientMeta{Fingerprint: "fp-a"}, newDetectDeps(&rec, metricCounts{}, now))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if res.Verdict != DetectClean || rec.travels != 0 {
		t.Fatalf("expected clean verdict, got %+v", res)
	}
}

func TestRunDetectPropagatesStoreError(t *testing.T) {
	var rec detectRecorder
	deps := newDetectDeps(&rec, metricCounts{}, time.Now())
	deps.RevokeSession = func(context.Context, string) error { return errBoom }

	_, err := RunDetect(context.Background(), &session.Snapshot{Fingerprint: "a"}, ClientMeta{Fingerprint: "b"}, deps)
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if rec.hijacks != 0 {
		t.Fatal("expected no alert when revocation failed")
	}
}

type migrateRecorder struct {
	markers   map[string]bool
	ttl       time.Duration
	released  int
	penalties int
	issued    int
	warnings  int
}

func newMigrateDeps(rec *migrateRecorder) MigrateDeps {
	rec.markers = map[string]bool{}
	return MigrateDeps{
		LegacyPenalty: 10,
		MarkerTTL:     time.Hour,
		GetUserByID: func(_ context.Context, id string) (UserRecord, error) {
			if id == "gone" {
				return UserRecord{}, errUserGone
			}
			return UserRecord{UserID: id, Role: "user"}, nil
		},
		ClaimMarker: func(_ context.Context, hash, _ string, ttl time.Duration) (bool, error) {
			rec.ttl = ttl
			if rec.markers[hash] {
				return false, nil
			}
			rec.markers[hash] = true
			return true, nil
		},
		ReleaseMarker: func(_ context.Context, hash string) error {
			delete(rec.markers, hash)
			rec.released++
			return nil
		},
		ResolveLocation: func(context.Context, string) geo.Location { return berlin },
		IncrementRiskScore: func(context.Context, string, int) error {
			rec.penalties++
			return nil
		},
		IssueSession: func(_ context.Context, u UserRecord, _ ClientMeta, _ geo.Location, legacy bool) (*SessionTokens, error) {
			if !legacy {
				return nil, errors.New("expected legacy session")
			}
			rec.issued++
			return &SessionTokens{SessionID: "s-new", AccessToken: "a", RefreshToken: "r"}, nil
		},
		Warn:         func(string, ...any) { rec.warnings++ },
		UserNotFound: errUserGone,
	}
}

var errUserGone = errors.New("user gone")

func legacyCred(userID string) LegacyCredential {
	return LegacyCredential{UserID: userID, TokenHash: "hash-1", ExpiresAt: time.Now().Add(15 * time.Minute)}
}

func TestRunMigrateOnceThenReplay(t *testing.T) {
	var rec migrateRecorder
	deps := newMigrateDeps(&rec)
	ctx := context.Background()

	res, err := RunMigrate(ctx, legacyCred("u1"), ClientMeta{IP: "203.0.113.1"}, deps)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if res.Rejected || res.Tokens == nil || res.User.RiskScore != 10 {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = RunMigrate(ctx, legacyCred("u1"), ClientMeta{IP: "203.0.113.1"}, deps)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !res.Rejected {
		t.Fatal("expected replay to be rejected")
	}
	if rec.issued != 1 || rec.penalties != 1 {
		t.Fatalf("expected one session and one penalty, got %+v", rec)
	}
}

func TestRunMigrateReleasesMarkerOnFailure(t *testing.T) {
	var rec migrateRecorder
	deps := newMigrateDeps(&rec)
	deps.IssueSession = func(context.Context, UserRecord, ClientMeta, geo.Location, bool) (*SessionTokens, error) {
		return nil, errBoom
	}

	if _, err := RunMigrate(context.Background(), legacyCred("u1"), ClientMeta{}, deps); !errors.Is(err, errBoom) {
		t.Fatalf("expected issue error, got %v", err)
	}
	if rec.released != 1 || rec.markers["hash-1"] {
		t.Fatalf("expected marker released, got %+v", rec)
	}
}

func TestRunMigratePenaltyFailureOnlyWarns(t *testing.T) {
	var rec migrateRecorder
	deps := newMigrateDeps(&rec)
	deps.IncrementRiskScore = func(context.Context, string, int) error { return errBoom }

	res, err := RunMigrate(context.Background(), legacyCred("u1"), ClientMeta{}, deps)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if res.Rejected || rec.warnings != 1 {
		t.Fatalf("expected success with a warning, got %+v %+v", res, rec)
	}
}

func TestRunMigrateMissingUserRejected(t *testing.T) {
	var rec migrateRecorder
	res, err := RunMigrate(context.Background(), legacyCred("gone"), ClientMeta{}, newMigrateDeps(&rec))
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !res.Rejected || rec.issued != 0 {
		t.Fatalf("expected rejection, got %+v", res)
	}
}

func TestRunMigrateMarkerOutlivesCredential(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		expires time.Time
		wantTTL time.Duration
	}{
		{"short credential uses minimum", now.Add(15 * time.Minute), time.Hour},
		{"week-long credential", now.Add(7 * 24 * time.Hour), 7*24*time.Hour + time.Minute},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var rec migrateRecorder
			deps := newMigrateDeps(&rec)
			deps.Now = func() time.Time { return now }
			deps.Leeway = time.Minute
			cred := LegacyCredential{UserID: "u1", TokenHash: "hash-1", ExpiresAt: tc.expires}
			if _, err := RunMigrate(context.Background(), cred, ClientMeta{}, deps); err != nil {
				t.Fatalf("migrate: %v", err)
			}
			if rec.ttl != tc.wantTTL {
				t.Fatalf("expected marker ttl %s, got %s", tc.wantTTL, rec.ttl)
			}
		})
	}
}

func TestRunMigrateRejectsCredentialWithoutExpiry(t *testing.T) {
	var rec migrateRecorder
	res, err := RunMigrate(context.Background(), LegacyCredential{UserID: "u1", TokenHash: "hash-1"}, ClientMeta{}, newMigrateDeps(&rec))
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !res.Rejected || rec.issued != 0 || len(rec.markers) != 0 {
		t.Fatalf("expected rejection before claiming, got %+v %+v", res, rec)
	}
}

func TestRunAuthenticateSessionMismatch(t *testing.T) {
	var rec detectRecorder
	deps := AuthenticateDeps{
		ParseAccess: func(string) (*jwt.AccessClaims, error) {
			return &jwt.AccessClaims{UID: "u1", SID: "s1"}, nil
		},
		HashToken: func(s string) string { return "h:" + s },
		ValidateAndRefresh: func(context.Context, string, string) (*session.Snapshot, error) {
			return &session.Snapshot{SessionID: "s2", UserID: "u1", Fingerprint: "fp"}, nil
		},
		SessionNotFound: session.ErrNotFound,
		Detect:          newDetectDeps(&rec, metricCounts{}, time.Now()),
	}

	res, err := RunAuthenticate(context.Background(), AuthRequest{AccessToken: "a", RefreshToken: "r", Meta: ClientMeta{Fingerprint: "fp"}}, deps)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if res.Kind != AuthRejected || res.Reason != RejectSessionInvalidOrExpired || res.Stage != StageValidate {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunAuthenticateStoreErrorIsNotARejection(t *testing.T) {
	deps := AuthenticateDeps{
		ParseAccess: func(string) (*jwt.AccessClaims, error) {
			return &jwt.AccessClaims{UID: "u1", SID: "s1"}, nil
		},
		HashToken: func(s string) string { return s },
		ValidateAndRefresh: func(context.Context, string, string) (*session.Snapshot, error) {
			return nil, errBoom
		},
		SessionNotFound: session.ErrNotFound,
	}
	if _, err := RunAuthenticate(context.Background(), AuthRequest{AccessToken: "a", RefreshToken: "r"}, deps); !errors.Is(err, errBoom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestRunAuthenticateStoreErrorStage(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		presented string
		breakDeps func(*DetectDeps)
		want      AuthStage
	}{
		{
			name:      "revocation fails",
			presented: "fp-other",
			breakDeps: func(d *DetectDeps) {
				d.RevokeSession = func(context.Context, string) error { return errBoom }
			},
			want: StageFingerprintCheck,
		},
		{
			name:      "travel penalty fails",
			presented: "fp",
			breakDeps: func(d *DetectDeps) {
				d.IncrementRiskScore = func(context.Context, string, int) error { return errBoom }
			},
			want: StageTravelCheck,
		},
		{
			name:      "suspicious flag fails",
			presented: "fp",
			breakDeps: func(d *DetectDeps) {
				d.MarkSuspicious = func(context.Context, string) error { return errBoom }
			},
			want: StageTravelCheck,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var rec detectRecorder
			detect := newDetectDeps(&rec, metricCounts{}, now)
			tc.breakDeps(&detect)
			deps := AuthenticateDeps{
				ParseAccess: func(string) (*jwt.AccessClaims, error) {
					return &jwt.AccessClaims{UID: "u1", SID: "s1"}, nil
				},
				HashToken: func(s string) string { return s },
				ValidateAndRefresh: func(context.Context, string, string) (*session.Snapshot, error) {
					return &session.Snapshot{
						SessionID:       "s1",
						UserID:          "u1",
						Fingerprint:     "fp",
						LastActiveAt:    now.Add(-time.Hour),
						Location:        berlin,
						IPChanged:       true,
						CurrentLocation: tokyo,
					}, nil
				},
				SessionNotFound: session.ErrNotFound,
				Detect:          detect,
			}

			res, err := RunAuthenticate(context.Background(), AuthRequest{AccessToken: "a", RefreshToken: "r", Meta: ClientMeta{Fingerprint: tc.presented}}, deps)
			if !errors.Is(err, errBoom) {
				t.Fatalf("expected store error, got %v", err)
			}
			if res.Stage != tc.want {
				t.Fatalf("expected stage %s, got %s", tc.want, res.Stage)
			}
		})
	}
}

func TestRunAuthenticateNotConfigured(t *testing.T) {
	if _, err := RunAuthenticate(context.Background(), AuthRequest{AccessToken: "a"}, AuthenticateDeps{}); !errors.Is(err, errNotReady) {
		t.Fatalf("expected errNotReady, got %v", err)
	}
}

func TestRunLoginSkipsChallengeBelowThreshold(t *testing.T) {
	var started, issued int
	deps := LoginDeps{
		MaxActiveSessions: 2,
		GetUserByIdentity: func(context.Context, string) (UserRecord, error) {
			return UserRecord{UserID: "u1", PasswordHash: "h"}, nil
		},
		VerifyPassword:  func(string, string) (bool, error) { return true, nil },
		CountActive:     func(context.Context, string) (int, error) { return 1, nil },
		ResolveLocation: func(context.Context, string) geo.Location { return berlin },
		EvaluateRisk: func(context.Context, risk.Attempt) (risk.Assessment, error) {
			return risk.Assessment{Score: 20}, nil
		},
		StartChallenge: func(context.Context, UserRecord, ClientMeta) error {
			started++
			return nil
		},
		IssueSession: func(context.Context, UserRecord, ClientMeta, geo.Location, bool) (*SessionTokens, error) {
			issued++
			return &SessionTokens{SessionID: "s1"}, nil
		},
		Errors: LoginErrors{SessionCapExceeded: errBoom},
	}

	res, err := RunLoginWithResult(context.Background(), "alice", "pw", ClientMeta{}, deps)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.ChallengeRequired || res.SessionID != "s1" || started != 0 || issued != 1 {
		t.Fatalf("unexpected result %+v started=%d issued=%d", res, started, issued)
	}

	deps.CountActive = func(context.Context, string) (int, error) { return 2, nil }
	if _, err := RunLoginWithResult(context.Background(), "alice", "pw", ClientMeta{}, deps); !errors.Is(err, errBoom) {
		t.Fatalf("expected cap error, got %v", err)
	}
	if issued != 1 {
		t.Fatal("expected no session over the cap")
	}
}

func TestRunLoginUnknownUserBurnsPasswordCheck(t *testing.T) {
	errInvalid := errors.New("invalid credentials")
	var burned, started int
	metrics := metricCounts{}
	deps := LoginDeps{
		GetUserByIdentity: func(context.Context, string) (UserRecord, error) { return UserRecord{}, errUserGone },
		VerifyPassword:    func(string, string) (bool, error) { return true, nil },
		BurnPasswordCheck: func(string) { burned++ },
		CountActive:       func(context.Context, string) (int, error) { return 0, nil },
		ResolveLocation:   func(context.Context, string) geo.Location { return berlin },
		EvaluateRisk: func(context.Context, risk.Attempt) (risk.Assessment, error) {
			return risk.Assessment{Score: 80, RequiresChallenge: true}, nil
		},
		StartChallenge: func(context.Context, UserRecord, ClientMeta) error {
			started++
			return nil
		},
		IssueSession: func(context.Context, UserRecord, ClientMeta, geo.Location, bool) (*SessionTokens, error) {
			return &SessionTokens{SessionID: "s1"}, nil
		},
		MetricInc: metrics.inc,
		Metrics:   LoginMetrics{LoginFailure: 1, ChallengeRequired: 2},
		Errors:    LoginErrors{InvalidCredentials: errInvalid, UserNotFound: errUserGone},
	}

	if _, err := RunLoginWithResult(context.Background(), "ghost", "pw", ClientMeta{}, deps); !errors.Is(err, errInvalid) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if burned != 1 || metrics[1] != 1 {
		t.Fatalf("expected one burned check and one failure, got burned=%d metrics=%v", burned, metrics)
	}

	deps.GetUserByIdentity = func(context.Context, string) (UserRecord, error) {
		return UserRecord{UserID: "u1"}, nil
	}
	res, err := RunLoginWithResult(context.Background(), "alice", "pw", ClientMeta{}, deps)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !res.ChallengeRequired || res.SessionID != "" || started != 1 || metrics[2] != 1 {
		t.Fatalf("expected challenge without a session, got %+v", res)
	}
}

type challengeFake struct {
	record   *ChallengeRecord
	deleted  int
	consumed int
	resets   int
	alerts   int
}

var (
	errNoChallenge = errors.New("challenge not found")
	errIPMismatch  = errors.New("ip mismatch")
	errFpMismatch  = errors.New("fingerprint mismatch")
	errIncorrect   = errors.New("incorrect")
)

func newChallengeDeps(f *challengeFake) ChallengeDeps {
	return ChallengeDeps{
		CodeDigits:         6,
		TTL:                5 * time.Minute,
		MaxAttempts:        3,
		NewCode:            func(int) (string, error) { return "123456", nil },
		HashCode:           func(s string) [32]byte { var h [32]byte; copy(h[:], s); return h },
		FingerprintMatches: func(a, b string) bool { return a == b },
		Save: func(_ context.Context, _ string, r ChallengeRecord, _ time.Duration) error {
			f.record = &r
			return nil
		},
		Get: func(context.Context, string) (*ChallengeRecord, error) {
			if f.record == nil {
				return nil, errNoChallenge
			}
			return f.record, nil
		},
		Delete: func(context.Context, string) error {
			f.record = nil
			f.deleted++
			return nil
		},
		Consume: func(_ context.Context, _ string, _ time.Time, hash [32]byte, _ int) error {
			if f.record == nil {
				return errNoChallenge
			}
			if hash != f.record.CodeHash {
				return errIncorrect
			}
			f.record = nil
			f.consumed++
			return nil
		},
		ResetRiskScore: func(context.Context, string) error {
			f.resets++
			return nil
		},
		NotifyInterception: func(context.Context, string, ClientMeta) { f.alerts++ },
		Errors: ChallengeErrors{
			NotFoundOrExpired:   errNoChallenge,
			IPMismatch:          errIPMismatch,
			FingerprintMismatch: errFpMismatch,
			Incorrect:           errIncorrect,
		},
	}
}

func TestRunVerifyChallengeOrdering(t *testing.T) {
	issuer := ClientMeta{IP: "203.0.113.1", Fingerprint: "fp-a"}
	tests := []struct {
		name        string
		meta        ClientMeta
		code        string
		want        error
		wantRecord  bool
		wantAlerts  int
		wantResets  int
		wantDeleted int
	}{
		{name: "success", meta: issuer, code: "123456", want: nil, wantResets: 1},
		{name: "ip checked before code", meta: ClientMeta{IP: "198.51.100.1", Fingerprint: "fp-a"}, code: "123456", want: errIPMismatch, wantRecord: true},
		{name: "ip checked before fingerprint", meta: ClientMeta{IP: "198.51.100.1", Fingerprint: "fp-b"}, code: "123456", want: errIPMismatch, wantRecord: true},
		{name: "fingerprint burns challenge", meta: ClientMeta{IP: issuer.IP, Fingerprint: "fp-b"}, code: "123456", want: errFpMismatch, wantAlerts: 1, wantDeleted: 1},
		{name: "wrong code", meta: issuer, code: "000000", want: errIncorrect, wantRecord: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var f challengeFake
			deps := newChallengeDeps(&f)
			ctx := context.Background()
			if _, err := RunIssueChallenge(ctx, "alice", issuer, deps); err != nil {
				t.Fatalf("issue: %v", err)
			}

			err := RunVerifyChallenge(ctx, "alice", tc.code, tc.meta, deps)
			if !errors.Is(err, tc.want) || (tc.want == nil && err != nil) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if (f.record != nil) != tc.wantRecord {
				t.Fatalf("expected record present=%v", tc.wantRecord)
			}
			if f.alerts != tc.wantAlerts || f.resets != tc.wantResets || f.deleted != tc.wantDeleted {
				t.Fatalf("unexpected side effects %+v", f)
			}
		})
	}
}

func TestRunVerifyChallengeMissing(t *testing.T) {
	var f challengeFake
	err := RunVerifyChallenge(context.Background(), "alice", "123456", ClientMeta{}, newChallengeDeps(&f))
	if !errors.Is(err, errNoChallenge) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRunConfirmLoginChallengeCapLeavesChallengeIntact(t *testing.T) {
	var f challengeFake
	issuer := ClientMeta{IP: "203.0.113.1", Fingerprint: "fp-a"}
	errCap := errors.New("cap exceeded")
	active := 2
	issued := 0
	deps := ConfirmLoginDeps{
		Login: LoginDeps{
			MaxActiveSessions: 2,
			GetUserByIdentity: func(context.Context, string) (UserRecord, error) {
				return UserRecord{UserID: "u1", Identity: "alice"}, nil
			},
			CountActive:     func(context.Context, string) (int, error) { return active, nil },
			ResolveLocation: func(context.Context, string) geo.Location { return berlin },
			IssueSession: func(context.Context, UserRecord, ClientMeta, geo.Location, bool) (*SessionTokens, error) {
				issued++
				return &SessionTokens{SessionID: "s1"}, nil
			},
			Errors: LoginErrors{SessionCapExceeded: errCap},
		},
		Challenge: newChallengeDeps(&f),
	}
	ctx := context.Background()
	if _, err := RunIssueChallenge(ctx, "alice", issuer, deps.Challenge); err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := RunConfirmLoginChallenge(ctx, "alice", "123456", issuer, deps); !errors.Is(err, errCap) {
		t.Fatalf("expected cap error, got %v", err)
	}
	if f.record == nil || f.consumed != 0 || f.resets != 0 || issued != 0 {
		t.Fatalf("expected challenge and risk untouched, got %+v issued=%d", f, issued)
	}

	// With a slot free the same code still works.
	active = 1
	res, err := RunConfirmLoginChallenge(ctx, "alice", "123456", issuer, deps)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.SessionID != "s1" || f.consumed != 1 || f.resets != 1 || issued != 1 {
		t.Fatalf("unexpected result %+v %+v", res, f)
	}
}
