package config

import "reflect"

// ConfigDiff describes what changed between two configs. The fields named
// here are applied live; everything else only takes effect after a restart
// and is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ImagesChanged bool
	NewImages     bool

	ThresholdChanged bool
	NewThreshold     float64

	PartialMinLengthChanged bool
	NewPartialMinLength     int

	// RestartRequired lists the top-level sections with other changes.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.ImagesChanged || d.ThresholdChanged ||
		d.PartialMinLengthChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Display.ImagesEnabled() != new.Display.ImagesEnabled() {
		d.ImagesChanged = true
		d.NewImages = new.Display.ImagesEnabled()
	}
	if old.Resolver.SimilarityThreshold != new.Resolver.SimilarityThreshold {
		d.ThresholdChanged = true
		d.NewThreshold = new.Resolver.SimilarityThreshold
	}
	if old.Recognizer.PartialMinLength != new.Recognizer.PartialMinLength {
		d.PartialMinLengthChanged = true
		d.NewPartialMinLength = new.Recognizer.PartialMinLength
	}

	// Compare the remaining fields with the live ones masked out.
	o, n := *old, *new
	o.Server.LogLevel, n.Server.LogLevel = "", ""
	o.Display.Images, n.Display.Images = nil, nil
	o.Resolver.SimilarityThreshold, n.Resolver.SimilarityThreshold = 0, 0
	o.Recognizer.PartialMinLength, n.Recognizer.PartialMinLength = 0, 0

	sections := []struct {
		name     string
		old, new any
	}{
		{"server", o.Server, n.Server},
		{"mode", o.Mode, n.Mode},
		{"audio", o.Audio, n.Audio},
		{"recognizer", o.Recognizer, n.Recognizer},
		{"resolver", o.Resolver, n.Resolver},
		{"display", o.Display, n.Display},
		{"mic_level", o.MicLevel, n.MicLevel},
		{"api", o.API, n.API},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
