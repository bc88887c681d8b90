package models

import (
	"time"

	"ikuyo.transit.dev/internal/clock"
)

const ResponseVersion = 1

// ResponseModel is the envelope of every JSON API response.
type ResponseModel struct {
	Code        int         `json:"code"`
	CurrentTime int64       `json:"currentTime"`
	Text        string      `json:"text"`
	Version     int         `json:"version"`
	Data        interface{} `json:"data,omitempty"`
}

// ResponseCurrentTime is the clock's time in Unix milliseconds.
func ResponseCurrentTime(c clock.Clock) int64 {
	return c.NowUnixMilli()
}

func NewOKResponse(data interface{}, c clock.Clock) ResponseModel {
	return ResponseModel{
		Code:        200,
		CurrentTime: ResponseCurrentTime(c),
		Text:        "OK",
		Version:     ResponseVersion,
		Data:        data,
	}
}

type EntryData struct {
	Entry interface{} `json:"entry"`
}

func NewEntryResponse(entry interface{}, c clock.Clock) ResponseModel {
	return NewOKResponse(EntryData{Entry: entry}, c)
}

type ListData struct {
	List interface{} `json:"list"`
}

func NewListResponse(list interface{}, c clock.Clock) ResponseModel {
	return NewOKResponse(ListData{List: list}, c)
}

type CurrentTimeData struct {
	Time         int64  `json:"time"`
	ReadableTime string `json:"readableTime"`
}

func NewCurrentTimeData(t time.Time) EntryData {
	return EntryData{Entry: CurrentTimeData{
		Time:         t.UnixMilli(),
		ReadableTime: t.Format(time.RFC3339),
	}}
}

// ProviderModel describes a registered provider.
type ProviderModel struct {
	ID        string `json:"id"`
	ShortName string `json:"shortName"`
	LongName  string `json:"longName"`
}

// ConfigModel describes the running service and its saved widget config.
type ConfigModel struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Version     string        `json:"version"`
	Environment string        `json:"environment"`
	Widget      *WidgetConfig `json:"widget"`
}
