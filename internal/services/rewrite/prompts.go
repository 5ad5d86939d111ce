package rewrite

const rewriteStoryPrompt = `You rewrite stories for short-form vertical video narration.
Rewrite the story in plain spoken English: short sentences, no markup, no
links, no usernames, first person preserved. Keep the events and tone of the
original. Give the story a short punchy title and three to five lowercase
topic tags.
Respond with JSON only: {"title": string, "body": string, "tags": [string]}`

const shortenTitlePrompt = `You shorten video titles.
Shorten the given title so it fits within the maximum length while keeping
its meaning and hook. Never add quotes or emoji.
Respond with JSON only: {"title": string}`

const suggestTagsPrompt = `You tag short-form videos for discovery.
Suggest three to five lowercase topic tags for a video with the given title.
Single words or short phrases, no hash signs.
Respond with JSON only: {"tags": [string]}`

const censorTermsPrompt = `You detect profanity for audio bleeping.
List every profane or slur word that appears in the text, lowercased, one
entry per distinct word. Return an empty list when the text is clean.
Respond with JSON only: {"terms": [string]}`
