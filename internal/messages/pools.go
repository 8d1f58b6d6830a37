package messages

import (
	"fmt"
	"strings"
)

var builtinLocales = map[string]struct{}{
	"en": {},
	"de": {},
}

// FormatPrice renders an amount with two decimals using the locale's separator.
func FormatPrice(locale string, price float64) string {
	formatted := fmt.Sprintf("%.2f", price)
	if normalizeLocale(locale) == "de" {
		formatted = strings.Replace(formatted, ".", ",", 1)
	}
	return formatted
}

func defaultPools() map[string]map[Category][]string {
	return map[string]map[Category][]string{
		"en": {
			CategoryShocked: {
				"Ouch, that is quite a bit lower than we can go. How about {price}?",
				"That offer made us wince a little. We could do {price}.",
				"I am afraid that is far too low. Our counter is {price}.",
			},
			CategoryLow: {
				"We appreciate the offer, but it is a bit low. Could you do {price}?",
				"Not quite there yet. We can meet you at {price}.",
				"Let's find some middle ground: {price}.",
			},
			CategoryClose: {
				"We are very close! {price} and it is yours.",
				"Almost there. Can you go to {price}?",
				"So close. Meet us at {price} and we have a deal.",
			},
			CategorySuccess: {
				"Deal! You can have it for {price}.",
				"You've got yourself a bargain at {price}.",
				"Accepted. Enjoy your purchase at {price}!",
			},
			CategoryHigh: {
				"Good news: the current price is only {price}, no need to offer more.",
				"You are offering more than the list price. It is yours for {price}.",
			},
			CategoryFinal: {
				"This is our final offer: {price}. We can't go any lower.",
				"{price} is the best we can do. Final price.",
			},
			CategorySale: {
				"This item is already on sale, so the price of {price} is not negotiable.",
				"Sorry, discounted items can't be negotiated further. The price stays at {price}.",
			},
			CategoryClarify: {
				"Sorry, I didn't catch a price there. Please enter the amount you'd like to pay.",
				"Could you tell me your offer as a number?",
			},
			CategoryRateLimited: {
				"You are sending offers very quickly. Please wait a minute and try again.",
				"Too many offers in a short time. Take a breather and try again shortly.",
			},
			CategoryError: {
				"Something went wrong on our side. Please try again in a moment.",
				"We couldn't process your offer right now. Please try again later.",
			},
		},
		"de": {
			CategoryShocked: {
				"Autsch, das ist deutlich zu wenig. Wie wäre es mit {price}?",
				"Da müssen wir kurz schlucken. Wir könnten {price} anbieten.",
				"Das ist leider viel zu niedrig. Unser Gegenangebot: {price}.",
			},
			CategoryLow: {
				"Danke für das Angebot, aber das ist etwas zu niedrig. Wie wäre es mit {price}?",
				"Noch nicht ganz. Wir kommen Ihnen auf {price} entgegen.",
				"Treffen wir uns in der Mitte: {price}.",
			},
			CategoryClose: {
				"Wir sind ganz nah dran! Für {price} gehört es Ihnen.",
				"Fast geschafft. Gehen Sie auf {price}?",
			},
			CategorySuccess: {
				"Abgemacht! Sie bekommen es für {price}.",
				"Einverstanden. Viel Freude mit Ihrem Kauf für {price}!",
			},
			CategoryHigh: {
				"Gute Nachricht: Der aktuelle Preis liegt bei nur {price}.",
				"Sie bieten mehr als den Listenpreis. Es gehört Ihnen für {price}.",
			},
			CategoryFinal: {
				"Das ist unser letztes Angebot: {price}. Weiter runter geht es nicht.",
				"{price} ist unser Endpreis.",
			},
			CategorySale: {
				"Dieser Artikel ist bereits reduziert, der Preis von {price} ist nicht verhandelbar.",
			},
			CategoryClarify: {
				"Entschuldigung, ich habe keinen Preis erkannt. Bitte geben Sie einen Betrag ein.",
				"Wie viel möchten Sie zahlen? Bitte nennen Sie eine Zahl.",
			},
			CategoryRateLimited: {
				"Sie senden sehr schnell Angebote. Bitte warten Sie eine Minute.",
			},
			CategoryError: {
				"Da ist etwas schiefgelaufen. Bitte versuchen Sie es gleich noch einmal.",
			},
		},
	}
}
