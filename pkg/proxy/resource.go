package proxy

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Resource names a proxied upstream resource. The value doubles as the
// cache key namespace.
type Resource string

const (
	Clan        Resource = "clan"
	Members     Resource = "members"
	CurrentWar  Resource = "war"
	LeagueGroup Resource = "cwl"
	RaidSeasons Resource = "raids"
	Player      Resource = "player"
)

// DefaultRaidLimit is used when the caller gives no limit.
const DefaultRaidLimit = 10

var (
	// ErrUnknownResource is returned for a Resource not in the table.
	ErrUnknownResource = errors.New("unknown resource")

	// ErrInvalidTag is returned when a tag is empty after normalization.
	ErrInvalidTag = errors.New("invalid tag")

	// ErrInvalidLimit is returned for a non-numeric or non-positive limit.
	ErrInvalidLimit = errors.New("limit must be a positive integer")
)

// resourceDef describes how to reach a resource upstream.
type resourceDef struct {
	// pathFormat takes the normalized tag
	pathFormat string

	// shortTTL selects the war TTL instead of the default
	shortTTL bool
}

var resources = map[Resource]resourceDef{
	Clan:        {pathFormat: "/clans/%s"},
	Members:     {pathFormat: "/clans/%s/members"},
	CurrentWar:  {pathFormat: "/clans/%s/currentwar", shortTTL: true},
	LeagueGroup: {pathFormat: "/clans/%s/currentwar/leaguegroup"},
	RaidSeasons: {pathFormat: "/clans/%s/capitalraidseasons"},
	Player:      {pathFormat: "/players/%s"},
}

// Resources returns every known resource.
func Resources() []Resource {
	return []Resource{Clan, Members, CurrentWar, LeagueGroup, RaidSeasons, Player}
}

// upstreamPath builds the path relative to the upstream base URL.
func (r Resource) upstreamPath(tag string, limit int) (string, error) {
	def, ok := resources[r]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownResource, string(r))
	}
	path := fmt.Sprintf(def.pathFormat, tag)
	if r == RaidSeasons {
		path += "?limit=" + strconv.Itoa(limit)
	}
	return path, nil
}

// ParseLimit parses the raid seasons limit query parameter. An empty value
// yields DefaultRaidLimit.
func ParseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultRaidLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w (got %q)", ErrInvalidLimit, raw)
	}
	return n, nil
}
