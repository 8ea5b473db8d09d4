package repository

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// asDuplicateError は一意制約違反を*DuplicateErrorに変換する。該当しない場合はnilを返す。
// 制約名は "<table>_<column>_key" の命名規約に従う。
func asDuplicateError(err error) *DuplicateError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return nil
	}
	field := strings.TrimSuffix(pqErr.Constraint, "_key")
	if i := strings.Index(field, "_"); i >= 0 {
		field = field[i+1:]
	}
	return &DuplicateError{Field: field}
}

// validID はIDがUUID形式かを返す。UUID以外はどの行にも一致しない。
func validID(id string) bool {
	return uuid.Validate(id) == nil
}
