package refdata

// DefaultUnits is the initial units reference set: canonical measurement
// units used across supplier catalogs, with the free-form spellings that
// map onto them. Embeddings are computed at seed time.
func DefaultUnits() []Entry {
	return []Entry{
		{CanonicalName: "шт", Aliases: []string{"шт.", "штука", "штук", "pcs", "pc"}},
		{CanonicalName: "кг", Aliases: []string{"кг.", "килограмм", "kg"}},
		{CanonicalName: "т", Aliases: []string{"тонна", "тонн", "tn"}},
		{CanonicalName: "г", Aliases: []string{"гр", "грамм", "g"}},
		{CanonicalName: "м", Aliases: []string{"м.", "метр", "метров", "пог.м", "пог. м", "погонный метр", "м.п.", "мп"}},
		{CanonicalName: "м2", Aliases: []string{"м²", "кв.м", "кв. м", "квадратный метр", "m2"}},
		{CanonicalName: "м3", Aliases: []string{"м³", "куб.м", "куб. м", "кубический метр", "m3"}},
		{CanonicalName: "л", Aliases: []string{"л.", "литр", "литров", "l"}},
		{CanonicalName: "упак", Aliases: []string{"упак.", "упаковка", "уп", "уп."}},
		{CanonicalName: "рулон", Aliases: []string{"рул", "рул."}},
		{CanonicalName: "мешок", Aliases: []string{"меш", "меш."}},
		{CanonicalName: "лист", Aliases: []string{"л-т", "листов"}},
		{CanonicalName: "комплект", Aliases: []string{"компл", "компл.", "к-т"}},
		{CanonicalName: "пара", Aliases: []string{"пар"}},
	}
}

// DefaultColors is the initial colors reference set.
func DefaultColors() []Entry {
	return []Entry{
		{CanonicalName: "белый", Aliases: []string{"бел", "бел.", "white"}},
		{CanonicalName: "черный", Aliases: []string{"чёрный", "черн", "black"}},
		{CanonicalName: "серый", Aliases: []string{"сер", "grey", "gray"}},
		{CanonicalName: "красный", Aliases: []string{"красн", "red"}},
		{CanonicalName: "коричневый", Aliases: []string{"корич", "brown"}},
		{CanonicalName: "бежевый", Aliases: []string{"беж", "beige"}},
		{CanonicalName: "желтый", Aliases: []string{"жёлтый", "желт", "yellow"}},
		{CanonicalName: "зеленый", Aliases: []string{"зелёный", "зел", "green"}},
		{CanonicalName: "синий", Aliases: []string{"син", "blue"}},
		{CanonicalName: "оранжевый", Aliases: []string{"оранж", "orange"}},
		{CanonicalName: "прозрачный", Aliases: []string{"прозр", "transparent"}},
	}
}
