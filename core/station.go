package core

// cacheInitialSnr marks a station whose selection cache holds no
// decision yet. It is distinct from any SNR the simulation can report.
const cacheInitialSnr = -100

// Station holds the link-quality cache for one transmitter-receiver
// pair: the most recent raw observation and the last decision together
// with the observation that produced it. A cache hit requires the
// current observation to equal the cached one exactly and the requested
// channel width to match the cached width.
type Station struct {
	ID   string
	Caps Capabilities // what the peer advertises

	lastSnrObserved          float64
	lastChannelWidthObserved int
	lastNssObserved          int

	lastSnrCached    float64
	lastMode         Mode
	lastNss          int
	lastChannelWidth int
}

// RecordObservation stores a raw SNR report. A reported SNR of exactly
// zero is a sentinel for "no usable sample" and is discarded, keeping
// the last good observation in place.
func (s *Station) RecordObservation(snrDb float64, width, nss int) {
	if snrDb == 0 {
		return
	}
	s.lastSnrObserved = snrDb
	s.lastChannelWidthObserved = width
	s.lastNssObserved = nss
}

// EstimateSnrFor rescales the last raw observation to the requested
// channel width and NSS by dividing out the respective ratios. This is
// a linear approximation, not a dB-additive scaling law.
func (s *Station) EstimateSnrFor(width, nss int) float64 {
	snr := s.lastSnrObserved
	if width != s.lastChannelWidthObserved && s.lastChannelWidthObserved != 0 {
		snr /= float64(width) / float64(s.lastChannelWidthObserved)
	}
	if nss != s.lastNssObserved && s.lastNssObserved != 0 {
		snr /= float64(nss) / float64(s.lastNssObserved)
	}
	return snr
}

// LastMode returns the mode of the last cached decision.
func (s *Station) LastMode() Mode { return s.lastMode }

// LastSnrObserved returns the most recent raw SNR observation.
func (s *Station) LastSnrObserved() float64 { return s.lastSnrObserved }

// reset returns the station to its just-created state: no observation,
// empty cache, default mode, single stream.
func (s *Station) reset(defaultMode Mode) {
	s.lastSnrObserved = 0
	s.lastChannelWidthObserved = 0
	s.lastNssObserved = 1
	s.lastSnrCached = cacheInitialSnr
	s.lastMode = defaultMode
	s.lastChannelWidth = 0
	s.lastNss = 1
}
