package params

// DefaultVersion tags the shipped parameter table.
const DefaultVersion = "2024.10-1"

func spec(key string, value, lo, hi float64, src Source, desc string) Spec {
	return Spec{
		Key:         key,
		Value:       value,
		Range:       &Range{Min: lo, Max: hi},
		Source:      src,
		Version:     DefaultVersion,
		Description: desc,
	}
}

func withRef(s Spec, ref string) Spec {
	s.Reference = ref
	return s
}

// DefaultSpecs returns the shipped parameter table.
func DefaultSpecs() []Spec {
	return []Spec{
		spec("ems.base.score", 20, 0, 50, SourceExpert, "Baseline risk before weather factors"),
		spec("ems.factor.budget", 60, 20, 100, SourceAssumed, "Points distributed across positive factors by weights.*"),

		spec("weights.temperature", 0.30, 0, 1, SourceExpert, "Share of the factor budget for frost/cold nights"),
		spec("weights.dryness", 0.25, 0, 1, SourceExpert, "Share of the factor budget for dryness stress"),
		spec("weights.radiation", 0.20, 0, 1, SourceExpert, "Share of the factor budget for morning radiation"),
		spec("weights.diurnal", 0.15, 0, 1, SourceExpert, "Share of the factor budget for diurnal range"),
		spec("weights.humidity", 0.10, 0, 1, SourceExpert, "Share of the factor budget for dry morning air"),

		withRef(spec("ems.frost.threshold", 0, -10, 5, SourceLiterature, "Daily minimum at or below which frost bonus applies (°C)"),
			"Longland & Byrd 2006, J. Nutr. 136:2099S"),
		withRef(spec("ems.cold.threshold", 5, 0, 10, SourceLiterature, "Daily minimum at or below which cold bonus applies (°C)"),
			"Watts 2004"),
		spec("ems.cold.ratio", 0.5, 0, 1, SourceExpert, "Cold bonus as a fraction of the frost bonus"),
		spec("ems.slot.frost.morning", 1.0, 0, 1, SourceExpert, "Frost/cold slot weight, morning"),
		spec("ems.slot.frost.noon", 0.5, 0, 1, SourceExpert, "Frost/cold slot weight, noon"),
		spec("ems.slot.frost.evening", 0.3, 0, 1, SourceExpert, "Frost/cold slot weight, evening"),

		spec("ems.dry.et0_min", 2.0, 0, 10, SourceFitted, "7-day mean ET0 where dryness stress starts (mm/day)"),
		spec("ems.dry.et0_max", 5.0, 0, 15, SourceFitted, "7-day mean ET0 where dryness stress saturates (mm/day)"),
		spec("ems.dry.et0_max_score", 12, 0, 30, SourceExpert, "Maximum ET0 component of the dryness score"),
		spec("ems.dry.precip_threshold", 5, 0, 50, SourceExpert, "7-day precipitation below which the drought bonus applies (mm)"),
		spec("ems.dry.precip_bonus", 3, 0, 10, SourceExpert, "Drought bonus"),
		spec("ems.dry.wind_threshold", 15, 0, 60, SourceAssumed, "3-day mean wind above which the wind bonus applies (km/h)"),
		spec("ems.dry.wind_bonus", 2, 0, 10, SourceAssumed, "Drying wind bonus"),
		spec("ems.slot.dry.morning", 1.0, 0, 1, SourceExpert, "Dryness slot weight, morning"),
		spec("ems.slot.dry.noon", 0.8, 0, 1, SourceExpert, "Dryness slot weight, noon"),
		spec("ems.slot.dry.evening", 0.6, 0, 1, SourceExpert, "Dryness slot weight, evening"),

		spec("ems.diurnal.min_range", 6, 0, 20, SourceFitted, "Diurnal range where the boost starts (°C)"),
		spec("ems.diurnal.max_range", 16, 5, 30, SourceFitted, "Diurnal range where the boost saturates (°C)"),
		spec("ems.slot.diurnal.morning", 1.0, 0, 1, SourceExpert, "Diurnal slot weight, morning"),
		spec("ems.slot.diurnal.noon", 0.7, 0, 1, SourceExpert, "Diurnal slot weight, noon"),
		spec("ems.slot.diurnal.evening", 0.5, 0, 1, SourceExpert, "Diurnal slot weight, evening"),

		spec("ems.cloud.mid_threshold", 60, 0, 100, SourceExpert, "Cloud cover for the first relief step (%)"),
		spec("ems.cloud.mid_relief", -5, -30, 0, SourceExpert, "Relief at the first cloud step"),
		spec("ems.cloud.high_threshold", 85, 0, 100, SourceExpert, "Cloud cover for the second relief step (%)"),
		spec("ems.cloud.high_relief", -10, -30, 0, SourceExpert, "Relief at the second cloud step"),

		spec("ems.heat.threshold", 27, 15, 45, SourceLiterature, "Daily maximum above which heat relief may apply (°C)"),
		spec("ems.heat.precip_min", 10, 0, 100, SourceExpert, "7-day precipitation that counts as well watered (mm)"),
		spec("ems.heat.et0_max", 3, 0, 15, SourceExpert, "7-day mean ET0 below which heat is not drought (mm/day)"),
		spec("ems.heat.relief", -8, -30, 0, SourceExpert, "Heat relief without drought"),

		spec("ems.rad.threshold", 250, 0, 1500, SourceFitted, "Morning radiation where the sun bonus starts (W/m²)"),
		spec("ems.rad.full", 600, 0, 1500, SourceFitted, "Morning radiation where the sun bonus saturates (W/m²)"),
		spec("ems.rh.dry_threshold", 60, 0, 100, SourceExpert, "Morning humidity below which the dry-air bonus applies (%)"),

		spec("level.standard.safe_max", 39, 0, 100, SourceExpert, "Highest safe score, standard horses"),
		spec("level.standard.moderate_max", 69, 0, 100, SourceExpert, "Highest moderate score, standard horses"),
		spec("level.ems.safe_max", 29, 0, 100, SourceExpert, "Highest safe score, EMS horses"),
		spec("level.ems.moderate_max", 59, 0, 100, SourceExpert, "Highest moderate score, EMS horses"),
	}
}

// Default builds the shipped registry snapshot.
func Default() *Registry {
	r, err := New(DefaultVersion, DefaultSpecs())
	if err != nil {
		panic(err)
	}
	return r
}
