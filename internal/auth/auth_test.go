package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"schoolattend/internal/domain"
	"schoolattend/internal/store/memory"
)

var testIssuer = Issuer{Name: "test", Key: "secret", AccessTTL: time.Minute, RefreshTTL: time.Hour}

func TestIssueAndParse(t *testing.T) {
	pair, err := testIssuer.Issue("u1", "teacher")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := testIssuer.Parse(pair.AccessToken)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "u1" || claims.Role != "teacher" || claims.Type != TypeAccess {
		t.Fatalf("claims = %+v", claims)
	}
	refresh, err := testIssuer.Parse(pair.RefreshToken)
	if err != nil || refresh.Type != TypeRefresh {
		t.Fatalf("refresh claims = %+v, %v", refresh, err)
	}

	other := testIssuer
	other.Key = "different"
	if _, err := other.Parse(pair.AccessToken); err == nil {
		t.Fatal("token verified with the wrong key")
	}
	other = testIssuer
	other.Name = "someone-else"
	if _, err := other.Parse(pair.AccessToken); err == nil {
		t.Fatal("token accepted for the wrong issuer")
	}
}

func TestParseExpired(t *testing.T) {
	expired := testIssuer
	expired.AccessTTL = -time.Minute
	pair, err := expired.Issue("u1", "admin")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := testIssuer.Parse(pair.AccessToken); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.New(), testIssuer, nil)

	u, err := svc.Register(ctx, RegisterInput{Name: "Ms Rao", Email: " Rao@School.test ", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "rao@school.test" || u.Role != domain.RoleTeacher || u.PasswordHash == "correct-horse" {
		t.Fatalf("user = %+v", u)
	}

	_, err = svc.Register(ctx, RegisterInput{Name: "Dup", Email: "rao@school.test", Password: "another-pass"})
	if domain.CodeOf(err) != domain.CodeDuplicateEmail {
		t.Fatalf("duplicate email: %v", err)
	}

	sess, err := svc.Login(ctx, "RAO@school.test", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.User.ID != u.ID || sess.Tokens.AccessToken == "" {
		t.Fatalf("session = %+v", sess)
	}

	for _, tc := range []struct{ email, password string }{
		{"rao@school.test", "wrong-password"},
		{"nobody@school.test", "correct-horse"},
	} {
		if _, err := svc.Login(ctx, tc.email, tc.password); domain.CodeOf(err) != domain.CodeUnauthorized {
			t.Errorf("Login(%s): %v", tc.email, err)
		}
	}

	pair, err := svc.Refresh(ctx, sess.Tokens.RefreshToken)
	if err != nil || pair.AccessToken == "" {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := svc.Refresh(ctx, sess.Tokens.AccessToken); domain.CodeOf(err) != domain.CodeUnauthorized {
		t.Fatalf("refresh with access token: %v", err)
	}

	me, err := svc.Me(ctx, u.ID)
	if err != nil || me.Email != u.Email {
		t.Fatalf("Me: %+v, %v", me, err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(memory.New(), testIssuer, nil)
	cases := []RegisterInput{
		{Name: " ", Email: "a@b.test", Password: "12345678"},
		{Name: "A", Email: "not-an-email", Password: "12345678"},
		{Name: "A", Email: "a@b.test", Password: "short"},
		{Name: "A", Email: "a@b.test", Password: "12345678", Role: "janitor"},
	}
	for _, in := range cases {
		if _, err := svc.Register(context.Background(), in); domain.CodeOf(err) != domain.CodeInvalidArgument {
			t.Errorf("Register(%+v) = %v, want INVALID_ARGUMENT", in, err)
		}
	}
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.New(), testIssuer, nil)
	created, err := svc.EnsureAdmin(ctx, "admin@school.test", "bootstrap-pass")
	if err != nil || !created {
		t.Fatalf("first EnsureAdmin = %v, %v", created, err)
	}
	created, err = svc.EnsureAdmin(ctx, "ADMIN@school.test", "bootstrap-pass")
	if err != nil || created {
		t.Fatalf("second EnsureAdmin = %v, %v", created, err)
	}
	sess, err := svc.Login(ctx, "admin@school.test", "bootstrap-pass")
	if err != nil || sess.User.Role != domain.RoleAdmin {
		t.Fatalf("admin login: %+v, %v", sess, err)
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", Authenticate(testIssuer), RequireRole(domain.RoleAdmin), func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.String(http.StatusOK, claims.Subject)
	})

	admin, _ := testIssuer.Issue("a1", "admin")
	teacher, _ := testIssuer.Issue("t1", "teacher")

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"refresh token", "Bearer " + admin.RefreshToken, http.StatusUnauthorized},
		{"wrong role", "Bearer " + teacher.AccessToken, http.StatusForbidden},
		{"admin", "bearer " + admin.AccessToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}
