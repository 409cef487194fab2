// Package surfaces holds the static registry of scheduled surfaces: the
// named placements content can be scheduled onto. The table is fixed at
// compile time; adding a surface is a code change, not configuration.
package surfaces

// Surface describes one placement a curated item can be scheduled onto.
type Surface struct {
	GUID         string `json:"guid"`
	Name         string `json:"name"`
	IANATimezone string `json:"ianaTimezone"`
}

var registry = []Surface{
	{GUID: "NEW_TAB_EN_US", Name: "New Tab (en-US)", IANATimezone: "America/New_York"},
	{GUID: "NEW_TAB_DE_DE", Name: "New Tab (de-DE)", IANATimezone: "Europe/Berlin"},
	{GUID: "NEW_TAB_EN_GB", Name: "New Tab (en-GB)", IANATimezone: "Europe/London"},
	{GUID: "NEW_TAB_FR_FR", Name: "New Tab (fr-FR)", IANATimezone: "Europe/Paris"},
	{GUID: "NEW_TAB_IT_IT", Name: "New Tab (it-IT)", IANATimezone: "Europe/Rome"},
	{GUID: "NEW_TAB_ES_ES", Name: "New Tab (es-ES)", IANATimezone: "Europe/Madrid"},
	{GUID: "NEW_TAB_EN_INTL", Name: "New Tab (en-INTL)", IANATimezone: "Asia/Kolkata"},
	{GUID: "DAILY_DIGEST_EN_US", Name: "Daily Digest (en-US)", IANATimezone: "America/New_York"},
}

var byGUID = func() map[string]Surface {
	m := make(map[string]Surface, len(registry))
	for _, s := range registry {
		m[s.GUID] = s
	}
	return m
}()

// Lookup returns the surface with the given GUID.
func Lookup(guid string) (Surface, bool) {
	s, ok := byGUID[guid]
	return s, ok
}

// IsValid reports whether guid names a known surface.
func IsValid(guid string) bool {
	_, ok := byGUID[guid]
	return ok
}

// All returns every surface in registry order. The returned slice is a copy.
func All() []Surface {
	out := make([]Surface, len(registry))
	copy(out, registry)
	return out
}
