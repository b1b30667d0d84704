package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/hectorgon/coderwall/pkg/errors"
)

var (
	// ErrTeamNotFound indicates the requested team does not exist.
	ErrTeamNotFound = apperrors.New("TEAM_NOT_FOUND", "Team not found", http.StatusNotFound)
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrAlreadyMember signals the user already belongs to the team.
	ErrAlreadyMember = apperrors.New("TEAM_MEMBER_EXISTS", "User already belongs to the team", http.StatusConflict)
	// ErrJoinRequestNotFound indicates no join request exists for the pair.
	ErrJoinRequestNotFound = apperrors.New("JOIN_REQUEST_NOT_FOUND", "Join request not found", http.StatusNotFound)
	// ErrJoinRequestResolved signals the join request was already approved or
	// denied; resolved requests are terminal.
	ErrJoinRequestResolved = apperrors.New("JOIN_REQUEST_RESOLVED", "Join request already resolved", http.StatusConflict)
	// ErrMembershipNotResolved indicates acceptInvite processed every
	// invitation without granting the caller a team.
	ErrMembershipNotResolved = apperrors.New("MEMBERSHIP_NOT_RESOLVED", "No invitation granted membership", http.StatusNotFound)
	// ErrPageOutOfRange signals an empty non-first leaderboard page; the
	// boundary redirects the caller to the canonical first page.
	ErrPageOutOfRange = apperrors.New("PAGE_OUT_OF_RANGE", "Requested page is beyond the last ranked team", http.StatusNotFound)

	// errStaleVersion is internal: the optimistic version guard failed and
	// the operation should retry once against fresh state.
	errStaleVersion = errors.New("stale team version")
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") ||
		strings.Contains(lower, "duplicate") ||
		strings.Contains(lower, "constraint")
}
