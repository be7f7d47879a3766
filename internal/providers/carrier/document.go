package carrier

import (
	"fmt"
	"time"

	"github.com/beevik/etree"

	"github.com/hvactools/infinityctl/pkg/temperature"
)

// The remote documents are a partially understood superset: edits are
// read-modify-write over the full tree, and everything the client does not
// touch must survive serialization verbatim. That rules out fixed structs;
// the adapters below wrap an ordered XML DOM instead.

const (
	xmlDeclaration  = `<?xml version="1.0"?>`
	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// modeMap collapses the heat-source specific modes the API reports into the
// canonical values the CLI exposes.
var modeMap = map[string]string{
	"gasheat":    "heat",
	"electric":   "heat",
	"hpheat":     "heat",
	"dehumidify": "cool",
}

// NormalizeMode maps a raw system mode to its canonical form. Values with
// no mapping pass through unchanged.
func NormalizeMode(raw string) string {
	if m, ok := modeMap[raw]; ok {
		return m
	}
	return raw
}

func parseDocument(data string) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(data); err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	if doc.Root() == nil {
		return nil, &NotFoundError{What: "document root"}
	}
	return doc, nil
}

// serializeDocument renders the tree back to the wire format with the
// declaration prefix the config endpoint requires.
func serializeDocument(doc *etree.Document) (string, error) {
	out := etree.NewDocument()
	out.SetRoot(doc.Root().Copy())
	s, err := out.WriteToString()
	if err != nil {
		return "", fmt.Errorf("serializing document: %w", err)
	}
	return xmlDeclaration + s, nil
}

func childText(el *etree.Element, tag, fallback string) string {
	child := el.SelectElement(tag)
	if child == nil || child.Text() == "" {
		return fallback
	}
	return child.Text()
}

func childFloat(el *etree.Element, tag string) float64 {
	f, ok := temperature.ParseDegrees(childText(el, tag, ""))
	if !ok {
		return 0.0
	}
	return f
}

// ensureChild returns the named child element, creating it when absent.
func ensureChild(parent *etree.Element, tag string) *etree.Element {
	if el := parent.SelectElement(tag); el != nil {
		return el
	}
	return parent.CreateElement(tag)
}

// StatusDoc is the read-only view of a system status document.
type StatusDoc struct {
	doc *etree.Document
}

// ParseStatus parses a status document.
func ParseStatus(data string) (*StatusDoc, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	return &StatusDoc{doc: doc}, nil
}

// OutdoorTemp returns the outdoor air temperature. The second return value
// is false when the field is absent or unparseable.
func (d *StatusDoc) OutdoorTemp() (float64, bool) {
	return temperature.ParseDegrees(childText(d.doc.Root(), "oat", ""))
}

// RawMode returns the system mode exactly as reported.
func (d *StatusDoc) RawMode() string {
	return childText(d.doc.Root(), "mode", "")
}

// Mode returns the normalized system mode.
func (d *StatusDoc) Mode() string {
	return NormalizeMode(d.RawMode())
}

// Zones returns the per-zone status entries, unfiltered.
func (d *StatusDoc) Zones() []StatusZone {
	zonesEl := d.doc.Root().SelectElement("zones")
	if zonesEl == nil {
		return nil
	}
	els := zonesEl.SelectElements("zone")
	zones := make([]StatusZone, 0, len(els))
	for _, el := range els {
		zones = append(zones, StatusZone{el: el})
	}
	return zones
}

// StatusZone wraps one <zone> element of a status document. Missing or
// unparseable numeric fields read as 0.0; missing text fields read as their
// documented fallbacks.
type StatusZone struct {
	el *etree.Element
}

func (z StatusZone) ID() string            { return z.el.SelectAttrValue("id", "") }
func (z StatusZone) Temp() float64         { return childFloat(z.el, "rt") }
func (z StatusZone) Humidity() float64     { return childFloat(z.el, "rh") }
func (z StatusZone) HeatSetpoint() float64 { return childFloat(z.el, "htsp") }
func (z StatusZone) CoolSetpoint() float64 { return childFloat(z.el, "clsp") }
func (z StatusZone) Activity() string      { return childText(z.el, "currentActivity", "unknown") }
func (z StatusZone) Fan() string           { return childText(z.el, "fan", "auto") }
func (z StatusZone) Conditioning() string  { return childText(z.el, "zoneconditioning", "idle") }

// ConfigDoc is the mutable view of a system config document.
type ConfigDoc struct {
	doc *etree.Document
}

// ParseConfig parses a config document.
func ParseConfig(data string) (*ConfigDoc, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	return &ConfigDoc{doc: doc}, nil
}

// Serialize renders the document for pushing back to the API, preserving
// all structure the client did not modify.
func (d *ConfigDoc) Serialize() (string, error) {
	return serializeDocument(d.doc)
}

// Mode returns the document-level system mode.
func (d *ConfigDoc) Mode() string {
	return childText(d.doc.Root(), "mode", "")
}

// SetMode sets the document-level system mode.
func (d *ConfigDoc) SetMode(mode string) {
	ensureChild(d.doc.Root(), "mode").SetText(mode)
}

// StampTimestamp writes the document-level timestamp in the fractional-
// second UTC form the API expects.
func (d *ConfigDoc) StampTimestamp(t time.Time) {
	ensureChild(d.doc.Root(), "timestamp").SetText(t.UTC().Format(timestampLayout))
}

// ZoneNames returns a map of zone id to configured zone name.
func (d *ConfigDoc) ZoneNames() map[string]string {
	names := make(map[string]string)
	zonesEl := d.doc.Root().SelectElement("zones")
	if zonesEl == nil {
		return names
	}
	for _, el := range zonesEl.SelectElements("zone") {
		id := el.SelectAttrValue("id", "")
		names[id] = childText(el, "name", "Zone "+id)
	}
	return names
}

// Zone locates the settings for one zone. A missing zones section or zone
// id is a NotFoundError; the document will not grow the zone on retry.
func (d *ConfigDoc) Zone(id string) (*ZoneSettings, error) {
	zonesEl := d.doc.Root().SelectElement("zones")
	if zonesEl == nil {
		return nil, &NotFoundError{What: "zones section"}
	}
	for _, el := range zonesEl.SelectElements("zone") {
		if el.SelectAttrValue("id", "") == id {
			return &ZoneSettings{id: id, el: el}, nil
		}
	}
	return nil, &NotFoundError{What: "zone " + id}
}

// ZoneSettings wraps one <zone> element of a config document.
type ZoneSettings struct {
	id string
	el *etree.Element
}

// HoldOn reports whether the zone's hold flag is currently on.
func (z *ZoneSettings) HoldOn() bool {
	return childText(z.el, "hold", "") == "on"
}

// SetHold flips the zone's hold flag, creating the field if absent.
func (z *ZoneSettings) SetHold(on bool) {
	text := "off"
	if on {
		text = "on"
	}
	ensureChild(z.el, "hold").SetText(text)
}

// HoldActivity returns the activity the hold references.
func (z *ZoneSettings) HoldActivity() string {
	return childText(z.el, "holdActivity", "")
}

// SetHoldActivity points the hold at the named activity. An empty name
// clears the reference.
func (z *ZoneSettings) SetHoldActivity(name string) {
	ensureChild(z.el, "holdActivity").SetText(name)
}

// HoldUntil returns the override timer, empty for an indefinite hold.
func (z *ZoneSettings) HoldUntil() string {
	return childText(z.el, "otmr", "")
}

// SetHoldUntil sets the override timer. An empty value means an indefinite
// hold.
func (z *ZoneSettings) SetHoldUntil(until string) {
	ensureChild(z.el, "otmr").SetText(until)
}

// ManualActivity locates the zone's manual activity entry.
func (z *ZoneSettings) ManualActivity() (*Activity, error) {
	activitiesEl := z.el.SelectElement("activities")
	if activitiesEl == nil {
		return nil, &NotFoundError{What: "zone " + z.id + " activities"}
	}
	for _, el := range activitiesEl.SelectElements("activity") {
		if el.SelectAttrValue("id", "") == "manual" {
			return &Activity{el: el}, nil
		}
	}
	return nil, &NotFoundError{What: "zone " + z.id + " manual activity"}
}

// Activity wraps one <activity> element of a config document.
type Activity struct {
	el *etree.Element
}

// HeatSetpoint returns the activity's heating setpoint.
func (a *Activity) HeatSetpoint() (float64, bool) {
	return temperature.ParseDegrees(childText(a.el, "htsp", ""))
}

// CoolSetpoint returns the activity's cooling setpoint.
func (a *Activity) CoolSetpoint() (float64, bool) {
	return temperature.ParseDegrees(childText(a.el, "clsp", ""))
}

// SetHeatSetpoint writes the heating setpoint in wire format.
func (a *Activity) SetHeatSetpoint(f float64) {
	ensureChild(a.el, "htsp").SetText(temperature.FormatSetpoint(f))
}

// SetCoolSetpoint writes the cooling setpoint in wire format.
func (a *Activity) SetCoolSetpoint(f float64) {
	ensureChild(a.el, "clsp").SetText(temperature.FormatSetpoint(f))
}

// ProfileDoc is the read-only view of a system profile document.
type ProfileDoc struct {
	doc *etree.Document
}

// ParseProfile parses a profile document.
func ParseProfile(data string) (*ProfileDoc, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	return &ProfileDoc{doc: doc}, nil
}

// PresentZones returns the set of zone ids the profile flags as physically
// present. An empty set means the profile carries no presence information.
func (d *ProfileDoc) PresentZones() map[string]bool {
	present := make(map[string]bool)
	zonesEl := d.doc.Root().SelectElement("zones")
	if zonesEl == nil {
		return present
	}
	for _, el := range zonesEl.SelectElements("zone") {
		if childText(el, "present", "") == "on" {
			present[el.SelectAttrValue("id", "")] = true
		}
	}
	return present
}
