package device

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Flag is a boolean setting. The firmware reports these as 0/1 or true/false
// depending on version, so both are accepted.
type Flag bool

// UnmarshalJSON accepts true/false, numbers and numeric strings.
func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	switch string(data) {
	case "true":
		*f = true
		return nil
	case "false", "null", "":
		*f = false
		return nil
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		// unknown encodings keep the current (default) value
		return nil
	}
	*f = n != 0
	return nil
}

// CameraSettings mirrors GET /status. Every field is optional on the wire.
type CameraSettings struct {
	CameraOpen    Flag `json:"camera_open"`
	LightBulb     Flag `json:"light_bulb"`
	FrameSize     int  `json:"framesize"`
	Quality       int  `json:"quality"`
	Brightness    int  `json:"brightness"`
	Contrast      int  `json:"contrast"`
	Saturation    int  `json:"saturation"`
	SpecialEffect int  `json:"special_effect"`
	AWB           Flag `json:"awb"`
	AWBGain       Flag `json:"awb_gain"`
	WBMode        int  `json:"wb_mode"`
	AEC           Flag `json:"aec"`
	AEC2          Flag `json:"aec2"`
	AELevel       int  `json:"ae_level"`
	AECValue      int  `json:"aec_value"`
	AGC           Flag `json:"agc"`
	GainCeiling   int  `json:"gainceiling"`
	BPC           Flag `json:"bpc"`
	WPC           Flag `json:"wpc"`
	RawGMA        Flag `json:"raw_gma"`
	LENC          Flag `json:"lenc"`
	HMirror       Flag `json:"hmirror"`
	VFlip         Flag `json:"vflip"`
	DCW           Flag `json:"dcw"`
	Colorbar      Flag `json:"colorbar"`
	LEDIntensity  int  `json:"led_intensity"`
}

// DefaultSettings returns the values used for fields the appliance omits.
func DefaultSettings() CameraSettings {
	return CameraSettings{
		FrameSize: 8, // VGA
		Quality:   10,
		AWB:       true,
		AWBGain:   true,
		AEC:       true,
		AECValue:  300,
		AGC:       true,
		WPC:       true,
		RawGMA:    true,
		LENC:      true,
		DCW:       true,
	}
}

// ParseSettings decodes a /status body over the defaults. Fields that are
// missing or have the wrong type keep their default.
func ParseSettings(body []byte) CameraSettings {
	settings := DefaultSettings()

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return settings
	}
	// Decode field by field so one malformed value doesn't discard the rest.
	for key, value := range raw {
		single, err := json.Marshal(map[string]json.RawMessage{key: value})
		if err != nil {
			continue
		}
		candidate := settings
		if err := json.Unmarshal(single, &candidate); err == nil {
			settings = candidate
		}
	}
	return settings
}
