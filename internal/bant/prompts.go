package bant

const extractionSystemPrompt = `You extract real-estate lead qualification facts from the buyer's latest message.
Return only JSON with these keys, using null when the message does not state a value:
{"budget": string|null, "authority": "sole"|"joint"|"group"|null, "need": string|null,
 "timeline": string|null, "contact_name": string|null, "contact_phone": string|null,
 "contact_email": string|null, "revised": [field names the buyer is correcting]}
Copy budget and timeline exactly as written. "need" is the purpose of the purchase in one or two words.
Only list a field in "revised" when the buyer explicitly changes an earlier answer.`

const contactSystemPrompt = `You extract contact details from the buyer's latest message.
The buyer was asked for their name and a phone number or email. Messages may be terse,
for example "Samuel Jackson, 098124814122".
Return only JSON: {"name": string|null, "phone": string|null, "email": string|null}.`

const budgetNormalizationPrompt = `Convert the budget to a number in major currency units.
Return only JSON: {"amount": number|null, "currency": ISO 4217 code|null}.`

const timelineNormalizationPrompt = `Convert the timeline to a duration until purchase.
Return only JSON: {"amount": integer|null, "unit": "day"|"week"|"month"|"year"|null}.`
