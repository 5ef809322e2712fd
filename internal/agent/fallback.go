package agent

import "github.com/ashureev/sonnik/internal/domain"

var fallbackReplies = map[domain.Locale][]string{
	domain.LocaleRU: {
		"Интересный сон! Такие сны часто связаны с эмоциональным состоянием. Возможно, вы переживаете о чем-то или испытываете внутреннее напряжение.",
		"Толкование вашего сна указывает на внутренние переживания или нерешенные вопросы. Это может быть отражением вашего подсознания, которое пытается обработать дневные впечатления.",
		"Подобные сны часто связаны с поиском себя или своего места в жизни. Возможно, вам стоит обратить внимание на текущие цели и приоритеты.",
		"Этот сон может отражать скрытые желания или страхи, которые требуют внимания. Обратите внимание на то, что вы чувствовали после пробуждения.",
		"Интерпретация такого сна обычно связана с переменами, которые происходят или скоро произойдут в вашей жизни. Будьте открыты новым возможностям.",
		"Этот сон может быть отражением вашего творческого потенциала или нереализованных идей. Возможно, пришло время выразить себя в каком-то новом качестве.",
	},
	domain.LocaleEN: {
		"An interesting dream. Dreams like this are often tied to your emotional state. You may be worried about something or carrying some inner tension.",
		"This dream points to inner concerns or unresolved questions. It may be your subconscious working through the impressions of the day.",
		"Dreams like this are often connected with searching for yourself or your place in life. It may be worth looking again at your current goals and priorities.",
		"This dream may reflect hidden wishes or fears that deserve some attention. Notice how you felt when you woke up.",
		"A dream like this usually relates to changes that are happening or will soon happen in your life. Stay open to new opportunities.",
		"This dream may mirror your creative potential or ideas you have not yet acted on. Perhaps it is time to express yourself in a new way.",
	},
}

// Fallback picks a stock reply for the given seed. It never looks at the dream text.
func Fallback(locale domain.Locale, seed int64) string {
	replies := fallbackReplies[locale.OrDefault()]
	n := int64(len(replies))
	idx := seed % n
	if idx < 0 {
		idx += n
	}
	return replies[idx]
}

// fallbackSeed rotates replies per user and per stored exchange. History is
// capped by the context window, so it cannot drive the rotation.
func fallbackSeed(in ReplyInput) int64 {
	var seed int64
	if in.User != nil {
		seed = in.User.ID
	}
	return seed + int64(in.Exchange)
}
