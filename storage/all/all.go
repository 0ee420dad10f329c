// Package all imports every built-in state storage for registration.
package all

import (
	_ "github.com/drblury/botflow/storage/jsonfile"
	_ "github.com/drblury/botflow/storage/memory"
	_ "github.com/drblury/botflow/storage/natskv"
	_ "github.com/drblury/botflow/storage/postgres"
	_ "github.com/drblury/botflow/storage/sqlite"
)
