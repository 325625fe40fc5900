package models

import "github.com/google/uuid"

// ensureID assigns a v4 id when the caller left it empty. Ids are generated
// in Go so the same models migrate on Postgres and sqlite.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
