package protocol

// Message type identifiers of the OCPP-J envelope.
const (
	MessageTypeCall       = 2
	MessageTypeCallResult = 3
	MessageTypeCallError  = 4
)

// Actions handled by the server.
const (
	ActionBootNotification = "BootNotification"
	ActionStartTransaction = "StartTransaction"
	ActionMeterValues      = "MeterValues"
	ActionStopTransaction  = "StopTransaction"
)

// Actions returns the complete supported action set.
func Actions() []string {
	return []string{
		ActionBootNotification,
		ActionStartTransaction,
		ActionMeterValues,
		ActionStopTransaction,
	}
}

// Registration status values.
const (
	RegistrationAccepted = "Accepted"
	RegistrationRejected = "Rejected"
)

// CallError codes.
const (
	ErrorCodeProtocolError  = "ProtocolError"
	ErrorCodeInternalError  = "InternalError"
	ErrorCodeNotImplemented = "NotImplemented"
)

// Measurands recognized by meter ingestion; anything else is ignored.
const (
	MeasurandVoltage     = "Voltage"
	MeasurandCurrent     = "Current.Import"
	MeasurandPowerActive = "Power.Active.Import"
	MeasurandSoc         = "SoC"
)
