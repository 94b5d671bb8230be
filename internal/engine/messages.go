package engine

// Canned answers for requests the engine never sends to the oracle.

const noFilesMessage = "No data files found. Please upload a file first."

const smallTalkFallbackMessage = "Hello! Upload a data file and ask me anything about it."

const colorCustomizationMessage = `I understand you'd like to customize the chart colors!

Currently, the chart colors and styles are set automatically. Specifying exact colors is not available in this version.

**Available options:**
- You can change the chart type: "show it as a line chart" or "show it as a table"
- You can ask different questions about your data

Would you like to see your data in a different chart type or ask a new question?`

const editCapabilityMessage = `Yes! You can edit your data in two ways:

1. **Natural Language Editing**: Just tell me what you want to change. For example:
   - "Increase [column name] by 10%"
   - "Set all [column name] to 0 for [condition]"
   - "Double the [column name] for [filter condition]"
   - "Change [column name] from [old value] to [new value]"
   - "Update [column name] where [condition]"

2. **Specific Instructions**: Be as specific as possible about:
   - Which rows to update (by any column values, filters, or conditions)
   - What values to change (column names and new values)
   - How to change them (increase by X%, set to Y, multiply by Z, etc.)

You can reference any columns in your dataset. Try asking me to make a specific change to your data!`

const noPreviousQueryMessage = `I'd be happy to show your data in a different chart type!

However, I don't see any previous data query to re-visualize. Please:
1. First ask a question about your data (e.g., "show me sources with count")
2. Then ask to see it in a different format (e.g., "show it as a line chart" or "show it as a table")

**Available chart types:**
- Bar chart: Great for comparing categories
- Line chart: Perfect for trends over time
- Table: Best for detailed data viewing

Try asking a data question first!`

// smallTalkSystemPrompt keeps greetings out of the data path: a short reply,
// no invented data.
const smallTalkSystemPrompt = `You are a friendly assistant for a conversational data analysis tool. The user is making small talk. Reply briefly and warmly in one or two sentences. Do not invent any data or claim to have analyzed anything.`
