package twofactor_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/geocoder89/accountcore/internal/domain/twofactor"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/geocoder89/accountcore/internal/repo/memory"
	"github.com/geocoder89/accountcore/internal/security"
	"github.com/geocoder89/accountcore/internal/twofactor"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func setup(t *testing.T) (*twofactor.Verifier, *memory.Store, user.User, string) {
	t.Helper()
	ctx := context.Background()

	store := memory.NewStore()
	u, err := store.Users().Create(ctx, user.NewUser{Email: "ada@example.com", Username: "ada", Role: user.RoleUser})
	require.NoError(t, err)

	key, err := security.NewTOTPKey("accountcore", u.Email)
	require.NoError(t, err)
	require.NoError(t, store.Users().SetTwoFactorSecret(ctx, u.ID, &key.Secret))

	u, err = store.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)

	v := twofactor.NewVerifier(store.RecoveryCodes(), store.Users(), "accountcore", nil, nil).
		WithClock(func() time.Time { return fixedNow })

	return v, store, u, key.Secret
}

func TestVerify_NotRequiredWithoutSecret(t *testing.T) {
	v, _, u, _ := setup(t)
	u.TwoFactorSecret = nil

	res, err := v.Verify(context.Background(), u, "")
	require.NoError(t, err)
	require.Equal(t, domain.NotRequired, res)
	require.True(t, res.OK())
}

func TestVerify_TOTP(t *testing.T) {
	v, _, u, secret := setup(t)
	ctx := context.Background()

	code, err := security.TOTPCode(secret, fixedNow)
	require.NoError(t, err)

	res, err := v.Verify(ctx, u, code[:3]+" "+code[3:])
	require.NoError(t, err)
	require.Equal(t, domain.ValidTOTP, res)

	prev, err := security.TOTPCode(secret, fixedNow.Add(-30*time.Second))
	require.NoError(t, err)
	res, err = v.Verify(ctx, u, prev)
	require.NoError(t, err)
	require.Equal(t, domain.ValidTOTP, res)

	stale, err := security.TOTPCode(secret, fixedNow.Add(-5*time.Minute))
	require.NoError(t, err)
	if stale != code && stale != prev {
		res, err = v.Verify(ctx, u, stale)
		require.NoError(t, err)
		require.Equal(t, domain.InvalidCode, res)
	}
}

func TestVerify_ShapeResults(t *testing.T) {
	v, _, u, _ := setup(t)
	ctx := context.Background()

	cases := map[string]domain.Result{
		"":               domain.MissingCode,
		"  - ":           domain.MissingCode,
		"12345":          domain.InvalidFormat,
		"abc!defghj":     domain.InvalidFormat,
		"0000000000":     domain.InvalidFormat,
		"abcde-fghjk":    domain.InvalidCode,
		"ABCDE FGHJK":    domain.InvalidCode,
		"1234567":        domain.InvalidFormat,
		"abcde-fg\u212A": domain.InvalidFormat,
	}

	for in, want := range cases {
		res, err := v.Verify(ctx, u, in)
		require.NoError(t, err, in)
		require.Equal(t, want, res, "input %q", in)
	}
}

func TestRecoveryCodeSingleUse(t *testing.T) {
	v, _, u, _ := setup(t)
	ctx := context.Background()

	codes, err := v.GenerateRecoveryCodes(ctx, u.ID, 8)
	require.NoError(t, err)
	require.Len(t, codes, 8)

	res, err := v.Verify(ctx, u, codes[0])
	require.NoError(t, err)
	require.Equal(t, domain.ValidRecovery, res)

	res, err = v.Verify(ctx, u, codes[0])
	require.NoError(t, err)
	require.Equal(t, domain.InvalidCode, res)

	res, err = v.Verify(ctx, u, strings.ToUpper(codes[1]))
	require.NoError(t, err)
	require.Equal(t, domain.ValidRecovery, res)

	sum, err := v.RecoveryCodesSummary(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 8, sum.Total)
	require.Equal(t, 6, sum.Remaining)
	require.NotNil(t, sum.LastGenerated)
	require.True(t, sum.LastGenerated.Equal(fixedNow))
}

func TestRegenerateInvalidatesPreviousBatch(t *testing.T) {
	v, _, u, _ := setup(t)
	ctx := context.Background()

	old, err := v.GenerateRecoveryCodes(ctx, u.ID, 0)
	require.NoError(t, err)
	require.Len(t, old, domain.DefaultRecoveryCodeCount)

	fresh, err := v.GenerateRecoveryCodes(ctx, u.ID, 3)
	require.NoError(t, err)

	res, err := v.Verify(ctx, u, old[0])
	require.NoError(t, err)
	require.Equal(t, domain.InvalidCode, res)

	res, err = v.Verify(ctx, u, fresh[2])
	require.NoError(t, err)
	require.Equal(t, domain.ValidRecovery, res)

	sum, err := v.RecoveryCodesSummary(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 3, sum.Total)
	require.Equal(t, 2, sum.Remaining)
}

func TestRecoveryCodeConcurrentUseSucceedsOnce(t *testing.T) {
	v, _, u, _ := setup(t)
	ctx := context.Background()

	codes, err := v.GenerateRecoveryCodes(ctx, u.ID, 1)
	require.NoError(t, err)

	const attempts = 20
	results := make(chan domain.Result, attempts)

	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			res, _ := v.Verify(ctx, u, codes[0])
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	valid := 0
	for res := range results {
		if res == domain.ValidRecovery {
			valid++
		}
	}
	require.Equal(t, 1, valid)
}

func TestSummaryIsReadOnly(t *testing.T) {
	v, _, u, _ := setup(t)
	ctx := context.Background()

	_, err := v.GenerateRecoveryCodes(ctx, u.ID, 4)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		sum, err := v.RecoveryCodesSummary(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, 4, sum.Remaining)
	}
}
