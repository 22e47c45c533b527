package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"challenge-quest/models"
	"challenge-quest/repository"
	"challenge-quest/services"
	"challenge-quest/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const secret = "handler-test-secret"

var epoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	t     *testing.T
	app   *fiber.App
	store *repository.MemoryStore
	clock *clockwork.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	store := repository.NewMemoryStore(clock.Now)
	log, _ := test.NewNullLogger()
	ctx := context.Background()

	levels := services.NewLevelService(store, log, services.DefaultLevelSpan)
	_, err := levels.SeedDefaultLevels(ctx)
	require.NoError(t, err)

	objects, err := utils.NewDiskStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	board := services.NewLeaderboardService(store, nil, 0, log, services.DefaultLevelSpan)
	users := services.NewUserService(store, board, log, services.DefaultLevelSpan)
	app := fiber.New()
	Setup(app, Deps{
		Auth:         services.NewAuthService(store, clock, log, secret, time.Hour, bcrypt.MinCost),
		Users:        users,
		Progression:  services.NewProgressionService(store, clock, log, services.DefaultLevelSpan),
		Challenges:   services.NewChallengeService(store, objects, clock, log, 1<<20),
		Categories:   services.NewCategoryService(store, log),
		Levels:       levels,
		Leaderboard:  board,
		DB:           store,
		Log:          log,
		GatewayToken: "gateway-secret",
	})
	return &harness{t: t, app: app, store: store, clock: clock}
}

// token creates a user directly in the store and signs a bearer for it.
func (h *harness) token(name string, admin bool) (string, *models.User) {
	h.t.Helper()
	u := &models.User{Email: name + "@example.com", Username: name, Level: 1, IsActive: true, IsAdmin: admin}
	require.NoError(h.t, h.store.CreateUser(context.Background(), u))
	h.clock.Advance(time.Second)
	tok, err := utils.NewAccessToken(secret, u.ID, admin, time.Hour, h.clock.Now())
	require.NoError(h.t, err)
	return tok.Token, u
}

func (h *harness) do(method, path string, body any, token string) (int, map[string]any) {
	h.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return h.send(req)
}

func (h *harness) send(req *http.Request) (int, map[string]any) {
	h.t.Helper()
	resp, err := h.app.Test(req, -1)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	if len(raw) > 0 {
		require.NoError(h.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (h *harness) createChallenge(adminToken string, codes ...string) map[string]any {
	h.t.Helper()
	stages := make([]map[string]any, len(codes))
	for i, code := range codes {
		stages[i] = map[string]any{"title": "Stage " + code, "proof_type": "QR_CODE", "qr_code": code}
	}
	status, body := h.do("POST", "/api/challenges", map[string]any{
		"title":      "Old Town Walk",
		"difficulty": "EASY",
		"xp_reward":  300,
		"start_date": epoch.Add(-time.Hour),
		"end_date":   epoch.Add(24 * time.Hour),
		"stages":     stages,
	}, adminToken)
	require.Equal(h.t, fiber.StatusCreated, status, body)
	return body
}

func stageIDs(challenge map[string]any) []string {
	var ids []string
	for _, s := range challenge["stages"].([]any) {
		ids = append(ids, s.(map[string]any)["id"].(string))
	}
	return ids
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	status, body := h.do("GET", "/health", nil, "")
	assert.Equal(t, 200, status)
	assert.Equal(t, "ok", body["status"])

	status, body = h.do("GET", "/health/db", nil, "")
	assert.Equal(t, 200, status)
	assert.Equal(t, "ok", body["status"])
}

func TestRegisterLoginProfile(t *testing.T) {
	h := newHarness(t)

	status, body := h.do("POST", "/api/auth/register", map[string]any{
		"email": "ana@example.com", "username": "ana", "password": "correct horse",
	}, "")
	require.Equal(t, 201, status, body)

	status, body = h.do("POST", "/api/auth/register", map[string]any{
		"email": "bad", "username": "ana", "password": "correct horse",
	}, "")
	assert.Equal(t, 400, status)
	assert.Equal(t, "VALIDATION_FAILED", body["code"])

	status, body = h.do("POST", "/api/auth/login", map[string]any{
		"email": "ana@example.com", "password": "wrong horse",
	}, "")
	assert.Equal(t, 401, status)
	assert.Equal(t, "INVALID_CREDENTIALS", body["code"])

	status, body = h.do("POST", "/api/auth/login", map[string]any{
		"email": "ana@example.com", "password": "correct horse",
	}, "")
	require.Equal(t, 200, status, body)
	token := body["token"].(map[string]any)["token"].(string)

	status, body = h.do("GET", "/api/auth/profile", nil, token)
	require.Equal(t, 200, status, body)
	assert.Equal(t, float64(1), body["rank"])
	assert.Equal(t, "ana", body["user"].(map[string]any)["username"])
}

func TestJoinAndSubmitFlow(t *testing.T) {
	h := newHarness(t)
	admin, _ := h.token("admin", true)
	player, u := h.token("player", false)
	challenge := h.createChallenge(admin, "ALPHA", "BRAVO")
	challengeID := challenge["id"].(string)
	stages := stageIDs(challenge)
	require.Len(t, stages, 2)

	status, body := h.do("POST", "/api/challenges/join", map[string]any{"challenge_id": challengeID}, "")
	assert.Equal(t, 401, status)
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	status, body = h.do("POST", "/api/challenges/join", map[string]any{"challenge_id": challengeID}, player)
	require.Equal(t, 201, status, body)

	status, body = h.do("POST", "/api/challenges/join", map[string]any{"challenge_id": challengeID}, player)
	assert.Equal(t, 409, status)
	assert.Equal(t, "ALREADY_JOINED", body["code"])

	status, body = h.do("GET", "/api/stages/"+stages[1]+"/status", nil, player)
	require.Equal(t, 200, status)
	assert.Equal(t, "LOCKED", body["status"])

	status, body = h.do("POST", "/api/challenges/submit-stage", map[string]any{
		"stage_id": stages[1], "submission_type": "QR_CODE", "content": "BRAVO",
	}, player)
	assert.Equal(t, 400, status)
	assert.Equal(t, "STAGE_LOCKED", body["code"])

	status, body = h.do("POST", "/api/challenges/submit-stage", map[string]any{
		"stage_id": stages[0], "submission_type": "QR_CODE", "content": "WRONG",
	}, player)
	assert.Equal(t, 400, status)
	assert.Equal(t, "INVALID_PROOF", body["code"])

	status, body = h.do("POST", "/api/challenges/submit-stage", map[string]any{
		"stage_id": stages[0], "submission_type": "QR_CODE",
	}, player)
	assert.Equal(t, 400, status)
	assert.Equal(t, "VALIDATION_FAILED", body["code"])

	status, body = h.do("POST", "/api/challenges/submit-stage", map[string]any{
		"stage_id": stages[0], "submission_type": "QR_CODE", "content": "ALPHA",
	}, player)
	require.Equal(t, 200, status, body)
	assert.Equal(t, false, body["challenge_completed"])
	assert.Equal(t, stages[1], body["next_stage_id"])

	status, body = h.do("POST", "/api/challenges/submit-stage", map[string]any{
		"stage_id": stages[1], "submission_type": "QR_CODE", "content": "BRAVO",
	}, player)
	require.Equal(t, 200, status, body)
	assert.Equal(t, true, body["challenge_completed"])
	assert.Equal(t, float64(300), body["xp_awarded"])
	assert.Equal(t, float64(300), body["total_xp"])

	status, body = h.do("GET", "/api/challenges/user/my-challenges?status=COMPLETED", nil, player)
	require.Equal(t, 200, status)
	assert.Len(t, body["challenges"], 1)

	status, body = h.do("GET", "/api/challenges/user/my-challenges?status=BOGUS", nil, player)
	assert.Equal(t, 400, status)

	status, body = h.do("GET", "/api/leaderboard?limit=1", nil, "")
	require.Equal(t, 200, status)
	top := body["leaderboard"].([]any)[0].(map[string]any)
	assert.Equal(t, u.ID, top["user_id"])
	assert.Equal(t, float64(1), top["rank"])

	status, body = h.do("GET", "/api/leaderboard/user-rank", nil, player)
	require.Equal(t, 200, status)
	assert.Equal(t, float64(1), body["rank"])

	status, body = h.do("GET", "/api/challenges/"+challengeID, nil, player)
	require.Equal(t, 200, status)
	assert.Equal(t, float64(1), body["completed_count"])
	assert.NotNil(t, body["user_progress"])

	status, body = h.do("GET", "/api/challenges/"+challengeID, nil, "")
	require.Equal(t, 200, status)
	assert.Nil(t, body["user_progress"])
}

func TestAdminGuards(t *testing.T) {
	h := newHarness(t)
	player, _ := h.token("player", false)

	status, body := h.do("POST", "/api/categories", map[string]any{"name": "Parks"}, player)
	assert.Equal(t, 403, status)
	assert.Equal(t, "FORBIDDEN", body["code"])

	status, _ = h.do("GET", "/api/users", nil, "")
	assert.Equal(t, 401, status)

	status, body = h.do("GET", "/api/categories", nil, "")
	assert.Equal(t, 200, status, "public routes stay open")
	assert.Empty(t, body["categories"])
}

func TestCatalogAdmin(t *testing.T) {
	h := newHarness(t)
	admin, _ := h.token("admin", true)

	status, body := h.do("POST", "/api/categories", map[string]any{"name": "Street Art"}, admin)
	require.Equal(t, 201, status, body)
	assert.Equal(t, "street-art", body["slug"])
	id := body["id"].(string)

	status, body = h.do("PATCH", "/api/categories/"+id+"/toggle-status", nil, admin)
	require.Equal(t, 200, status)
	assert.Equal(t, false, body["is_active"])

	status, body = h.do("GET", "/api/categories?all=true", nil, admin)
	require.Equal(t, 200, status)
	assert.Len(t, body["categories"], 1)

	status, body = h.do("POST", "/api/levels", map[string]any{"number": 11, "name": "Mythic", "min_xp": 50000}, admin)
	assert.Equal(t, 400, status)
	assert.Equal(t, "LEVEL_OVERLAP", body["code"])

	status, body = h.do("GET", "/api/levels", nil, "")
	require.Equal(t, 200, status)
	assert.Len(t, body["levels"], 10)

	status, body = h.do("POST", "/api/levels/update-all-users", nil, admin)
	require.Equal(t, 200, status)
	assert.Equal(t, float64(1), body["scanned"])
}

func TestGatewayIdentity(t *testing.T) {
	h := newHarness(t)
	_, u := h.token("player", false)

	req := httptest.NewRequest("GET", "/api/auth/profile", nil)
	req.Header.Set("Authorization", "Bearer gateway-secret")
	req.Header.Set("X-User-ID", u.ID)
	status, body := h.send(req)
	require.Equal(t, 200, status, body)
	assert.Equal(t, u.ID, body["user"].(map[string]any)["id"])
}

func TestUploadChallengeImage(t *testing.T) {
	h := newHarness(t)
	admin, _ := h.token("admin", true)
	challenge := h.createChallenge(admin, "ALPHA")
	id := challenge["id"].(string)

	upload := func(contentType string) (int, map[string]any) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="image"; filename="Cover Photo.png"`)
		hdr.Set("Content-Type", contentType)
		part, err := w.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write([]byte("\x89PNG fake"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		req := httptest.NewRequest("POST", "/api/challenges/"+id+"/image", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+admin)
		return h.send(req)
	}

	status, body := upload("image/png")
	require.Equal(t, 200, status, body)
	assert.Regexp(t, `^/uploads/challenges/`+id+`/cover-photo-[0-9a-f]{8}\.png$`, body["image_url"])

	status, body = upload("application/pdf")
	assert.Equal(t, 400, status)
	assert.Equal(t, "VALIDATION_FAILED", body["code"])
}
