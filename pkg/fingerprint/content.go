package fingerprint

import (
	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/pkg/errors"
)

// contentExclusions drops the fields the write engine owns: timestamps it
// stamps itself, the child-ref lists containers accrete from child writes
// and the container summary it denormalises onto items. Including them
// would make every write look like a change.
var contentExclusions = map[string]bool{
	"payload.id":                         true,
	"payload.first_seen":                 true,
	"payload.last_updated":               true,
	"payload.this_or_child_last_updated": true,
	"payload.item_refs":                  true,
	"payload.series_refs":                true,
	"payload.container_summary":          true,
}

// Content fingerprints a piece of content over its publisher-supplied
// fields only, so equal inputs hash equal regardless of write bookkeeping.
func Content(c models.Content) (string, error) {
	data, err := models.MarshalContent(c)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal content for fingerprinting")
	}
	return GenerateFromJSONWithExclusions(data, contentExclusions)
}
