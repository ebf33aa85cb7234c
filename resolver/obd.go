package resolver

// DefaultEntries returns the built-in OBD-II mode 01 phrase table.
func DefaultEntries() []PhraseEntry {
	return []PhraseEntry{
		{Code: "0101", Phrase: "check Engine light on"},
		{Code: "0101", Phrase: "Check if malfunction indicator light is on"},
		{Code: "0101", Phrase: "Get engine warning status"},
		{Code: "0101", Phrase: "Is the check engine light active?"},

		{Code: "0102", Phrase: "Read DTC error codes"},
		{Code: "0102", Phrase: "Get diagnostic trouble codes"},
		{Code: "0102", Phrase: "Show vehicle health status"},
		{Code: "0102", Phrase: "Scan for check engine light codes"},
		{Code: "0102", Phrase: "Retrieve fault codes"},
		{Code: "0102", Phrase: "Read engine error codes"},

		{Code: "0103", Phrase: "Read fuel system status"},
		{Code: "0103", Phrase: "Get fuel system condition"},
		{Code: "0103", Phrase: "Show fuel system state"},

		{Code: "0104", Phrase: "Read engine load"},
		{Code: "0104", Phrase: "Get calculated load value"},
		{Code: "0104", Phrase: "Show engine load percentage"},

		{Code: "0105", Phrase: "Read engine coolant temperature"},
		{Code: "0105", Phrase: "Get coolant temp"},
		{Code: "0105", Phrase: "Show engine temperature"},
		{Code: "0105", Phrase: "What is the coolant temperature?"},

		{Code: "0106", Phrase: "Read short term fuel trim for Bank 1"},
		{Code: "0106", Phrase: "Get STFT Bank 1"},
		{Code: "0106", Phrase: "Show short term fuel trim bank one"},

		{Code: "0107", Phrase: "Read long term fuel trim for Bank 1"},
		{Code: "0107", Phrase: "Get LTFT Bank 1"},
		{Code: "0107", Phrase: "Show long term fuel trim bank one"},

		{Code: "0108", Phrase: "Read short term fuel trim for Bank 2"},
		{Code: "0108", Phrase: "Get STFT Bank 2"},
		{Code: "0108", Phrase: "Show short term fuel trim bank two"},

		{Code: "0109", Phrase: "Read long term fuel trim for Bank 2"},
		{Code: "0109", Phrase: "Get LTFT Bank 2"},
		{Code: "0109", Phrase: "Show long term fuel trim bank two"},

		{Code: "010A", Phrase: "Read fuel pressure"},
		{Code: "010A", Phrase: "Get fuel rail pressure"},
		{Code: "010A", Phrase: "Show fuel system pressure"},

		{Code: "010B", Phrase: "Read intake manifold pressure"},
		{Code: "010B", Phrase: "Get manifold absolute pressure"},
		{Code: "010B", Phrase: "Show intake pressure"},

		{Code: "010C", Phrase: "Read engine rpm"},
		{Code: "010C", Phrase: "Get revolutions per minute"},
		{Code: "010C", Phrase: "Show current RPM"},
		{Code: "010C", Phrase: "What is the engine speed?"},

		{Code: "010D", Phrase: "Read vehicle speed"},
		{Code: "010D", Phrase: "Get car speed"},
		{Code: "010D", Phrase: "Show speedometer value"},
		{Code: "010D", Phrase: "What is the vehicle velocity?"},

		{Code: "010E", Phrase: "Read timing advance"},
		{Code: "010E", Phrase: "Get ignition timing advance"},
		{Code: "010E", Phrase: "Show timing advance degrees"},

		{Code: "010F", Phrase: "Read intake air temperature"},
		{Code: "010F", Phrase: "Get air intake temp"},
		{Code: "010F", Phrase: "Show intake air temp"},

		{Code: "0110", Phrase: "Read MAF air flow rate"},
		{Code: "0110", Phrase: "Get mass air flow"},
		{Code: "0110", Phrase: "Show air flow sensor data"},

		{Code: "0111", Phrase: "Read throttle position"},
		{Code: "0111", Phrase: "Get absolute throttle position"},
		{Code: "0111", Phrase: "Show throttle opening percentage"},

		{Code: "0112", Phrase: "Read commanded secondary air status"},
		{Code: "0112", Phrase: "Get secondary air injection status"},
		{Code: "0112", Phrase: "Show status of secondary air system"},

		{Code: "0113", Phrase: "How many oxygen sensors are present in the 2 banks"},
		{Code: "0113", Phrase: "Number of O2 sensors in banks"},
		{Code: "0113", Phrase: "Count oxygen sensors"},

		{Code: "0114", Phrase: "Read status of Oxygen Sensor 1"},
		{Code: "0114", Phrase: "Get oxygen sensor bank 1 sensor 1 status"},
		{Code: "0114", Phrase: "Show O2 sensor 1 data"},

		{Code: "0115", Phrase: "Read status of Oxygen Sensor 2"},
		{Code: "0115", Phrase: "Get oxygen sensor bank 1 sensor 2 status"},
		{Code: "0115", Phrase: "Show O2 sensor 2 data"},
	}
}

// DefaultCorpus returns the built-in OBD-II table as a validated corpus.
func DefaultCorpus() Corpus {
	c, err := NewCorpus(DefaultEntries())
	if err != nil {
		panic(err)
	}
	return c
}
