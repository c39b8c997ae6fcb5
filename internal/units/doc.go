// Package units bundles the sample units shipped with unitdebug.
//
// Importing it for side effects registers every sample module with the
// default unit registry:
//
//	import _ "github.com/bft-labs/unitdebug/internal/units"
package units

import (
	_ "github.com/bft-labs/unitdebug/internal/units/filter"
	_ "github.com/bft-labs/unitdebug/internal/units/jqmodify"
)
