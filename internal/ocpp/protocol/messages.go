package protocol

import "time"

// BootNotificationRequest minimal subset.
type BootNotificationRequest struct {
	ChargePointVendor string `json:"chargePointVendor"`
	ChargePointModel  string `json:"chargePointModel"`
	ChargePointSerial string `json:"chargePointSerialNumber,omitempty"`
	FirmwareVersion   string `json:"firmwareVersion,omitempty"`
}

// BootNotificationResponse carries server time and the heartbeat interval.
type BootNotificationResponse struct {
	CurrentTime time.Time `json:"currentTime"`
	Interval    int       `json:"interval"`
	Status      string    `json:"status"`
}

// IdTagInfo authorization result.
type IdTagInfo struct {
	Status string `json:"status"`
}

// StartTransactionRequest payload. ConnectorID and MeterStart are
// required; pointers let decoding distinguish absent from zero.
type StartTransactionRequest struct {
	ConnectorID *int       `json:"connectorId"`
	IdTag       string     `json:"idTag"`
	MeterStart  *float64   `json:"meterStart"`
	Soc         *int       `json:"soc,omitempty"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}

// StartTransactionResponse returns the session id as the transaction id.
type StartTransactionResponse struct {
	TransactionID int64     `json:"transactionId"`
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
}

// SampledValue is one (measurand, value, unit) triple. Value arrives as a
// string on the wire and is parsed during ingestion.
type SampledValue struct {
	Value     string `json:"value"`
	Measurand string `json:"measurand,omitempty"`
	Unit      string `json:"unit,omitempty"`
}

// MeterValueEntry is one timestamped sample group.
type MeterValueEntry struct {
	Timestamp    *time.Time     `json:"timestamp,omitempty"`
	SampledValue []SampledValue `json:"sampledValue"`
}

// MeterValuesRequest payload for telemetry.
type MeterValuesRequest struct {
	ConnectorID   int               `json:"connectorId"`
	TransactionID *int64            `json:"transactionId,omitempty"`
	MeterValue    []MeterValueEntry `json:"meterValue"`
}

// MeterValuesResponse is an empty ack regardless of ingestion outcome.
type MeterValuesResponse struct{}

// StopTransactionRequest payload.
type StopTransactionRequest struct {
	TransactionID *int64     `json:"transactionId"`
	IdTag         string     `json:"idTag,omitempty"`
	MeterStop     *float64   `json:"meterStop"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
	Reason        string     `json:"reason,omitempty"`
}

// StopTransactionResponse ack.
type StopTransactionResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}
