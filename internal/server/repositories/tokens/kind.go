package tokens

import (
	"fmt"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Stored token_type values. These are part of the schema and must not change.
const (
	codeRefresh       = 0
	codeAPI           = 1
	codePasswordReset = 2
)

var kindCodes = map[models.TokenKind]int{
	models.TokenKindRefresh:       codeRefresh,
	models.TokenKindAPI:           codeAPI,
	models.TokenKindPasswordReset: codePasswordReset,
}

func kindToCode(k models.TokenKind) (int, error) {
	c, ok := kindCodes[k]
	if !ok {
		return 0, fmt.Errorf("unsupported token kind %d", k)
	}
	return c, nil
}

func codeToKind(c int) (models.TokenKind, error) {
	for k, v := range kindCodes {
		if v == c {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown token_type %d", c)
}
